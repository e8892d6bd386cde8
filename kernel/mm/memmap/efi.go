package memmap

import (
	"github.com/TonyChenSmith/aos-sub001/kernel"
	"github.com/TonyChenSmith/aos-sub001/kernel/hal/efi"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm"
)

var errUnalignedDescriptor = &kernel.Error{Module: "memmap", Message: "memory map descriptor is not page aligned"}

// FromEFI classifies an EFI memory type. Memory owned by the loader and the
// boot services is reclaimable once the firmware hands over control and is
// reported as available. Runtime services and persistent memory stay
// reserved.
func FromEFI(typ efi.MemoryType) Type {
	switch typ {
	case efi.ConventionalMemory, efi.LoaderCode, efi.LoaderData,
		efi.BootServicesCode, efi.BootServicesData:
		return TypeAvailable
	case efi.ACPIReclaimMemory:
		return TypeACPITable
	case efi.ACPIMemoryNVS:
		return TypeACPINVS
	case efi.MemoryMappedIO, efi.MemoryMappedIOPortSpace:
		return TypeMMIO
	default:
		return TypeReserved
	}
}

// Seed records every descriptor of an EFI memory map into reg. Descriptors
// are inserted in address order and adjacent descriptors of the same class
// are coalesced. Empty descriptors are skipped.
func Seed(reg *Registry, memMap *efi.MemoryMap) *kernel.Error {
	var err *kernel.Error

	memMap.Visit(func(desc *efi.MemoryDescriptor) bool {
		if desc.NumberOfPages == 0 {
			return true
		}

		base := uintptr(desc.PhysicalStart)
		if !mm.IsPageAligned(base) {
			err = errUnalignedDescriptor
			return false
		}

		index := reg.Search(base)
		if !reg.Insert(index, base, desc.NumberOfPages, FromEFI(desc.Type)) {
			err = ErrRegistryFull
			return false
		}
		reg.Merge(index)
		return true
	})

	return err
}
