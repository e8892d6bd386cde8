// Package memmap maintains the registry of classified physical memory
// extents that is assembled during boot and handed to the kernel's physical
// memory manager.
package memmap

import (
	"fmt"

	"github.com/TonyChenSmith/aos-sub001/kernel/mm"
)

// Type classifies the contents of a memory extent.
type Type uint8

// Extent types.
const (
	TypeReserved Type = iota
	TypeAvailable
	TypeACPITable
	TypeACPINVS
	TypeKernelCode
	TypeKernelData
	TypeUserCode
	TypeUserData
	TypeMMIO
	typeCount
)

var typeNames = [typeCount]string{
	"reserved",
	"available",
	"acpi-table",
	"acpi-nvs",
	"kernel-code",
	"kernel-data",
	"user-code",
	"user-data",
	"mmio",
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if t < typeCount {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ParseType returns the Type whose String() matches name.
func ParseType(name string) (Type, bool) {
	for t, typeName := range typeNames {
		if typeName == name {
			return Type(t), true
		}
	}
	return 0, false
}

// Extent is a contiguous run of pages with a single classification.
type Extent struct {
	// Base is the page-aligned physical address of the first page.
	Base uintptr

	// Pages is the number of pages in the extent.
	Pages uint64

	Type Type
}

// End returns the first address past the extent.
func (e Extent) End() uintptr {
	return e.Base + uintptr(e.Pages)<<mm.PageShift
}

// Contains returns true if addr lies inside the extent.
func (e Extent) Contains(addr uintptr) bool {
	return addr >= e.Base && addr < e.End()
}

// String implements fmt.Stringer.
func (e Extent) String() string {
	return fmt.Sprintf("[0x%016x-0x%016x) %8d pages %s", e.Base, e.End(), e.Pages, e.Type)
}
