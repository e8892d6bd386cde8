package cpu

import "gvisor.dev/gvisor/pkg/cpuid"

// Feature bits for the CPUID leaves inspected by ProbeFeatures.
const (
	leafFeatureInfo         = 0x1
	leafExtendedFeatureInfo = 0x7
	leafExtendedFunctions   = 0x80000000
	leafExtendedFeatures    = 0x80000001

	edxPGE     = 1 << 13 // leaf 0x1
	ecxLA57    = 1 << 16 // leaf 0x7, subleaf 0
	edxNX      = 1 << 20 // leaf 0x80000001
	edxPage1GB = 1 << 26 // leaf 0x80000001
)

// ProbeFeatures queries the supplied CPUID function for the paging features
// that affect page table construction.
func ProbeFeatures(fn cpuid.Function) Features {
	var f Features

	f.GlobalPages = fn.Query(cpuid.In{Eax: leafFeatureInfo}).Edx&edxPGE != 0
	f.LA57 = fn.Query(cpuid.In{Eax: leafExtendedFeatureInfo}).Ecx&ecxLA57 != 0

	if maxExt := fn.Query(cpuid.In{Eax: leafExtendedFunctions}).Eax; maxExt >= leafExtendedFeatures {
		ext := fn.Query(cpuid.In{Eax: leafExtendedFeatures})
		f.NX = ext.Edx&edxNX != 0
		f.Page1GB = ext.Edx&edxPage1GB != 0
	}

	return f
}

// HostFeatures probes the features of the CPU executing this code.
func HostFeatures() Features {
	return ProbeFeatures(&cpuid.Native{})
}
