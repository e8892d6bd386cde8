// Package efi decodes the UEFI memory map handed over by the firmware.
package efi

import (
	"fmt"
	"unsafe"

	"github.com/TonyChenSmith/aos-sub001/kernel"
)

// MemoryType is the EFI_MEMORY_TYPE of a memory map descriptor.
type MemoryType uint32

// EFI_MEMORY_TYPE values.
const (
	ReservedMemoryType MemoryType = iota
	LoaderCode
	LoaderData
	BootServicesCode
	BootServicesData
	RuntimeServicesCode
	RuntimeServicesData
	ConventionalMemory
	UnusableMemory
	ACPIReclaimMemory
	ACPIMemoryNVS
	MemoryMappedIO
	MemoryMappedIOPortSpace
	PalCode
	PersistentMemory
	UnacceptedMemoryType
	maxMemoryType
)

var memoryTypeNames = [maxMemoryType]string{
	"Reserved",
	"LoaderCode",
	"LoaderData",
	"BootServicesCode",
	"BootServicesData",
	"RuntimeServicesCode",
	"RuntimeServicesData",
	"Conventional",
	"Unusable",
	"ACPIReclaim",
	"ACPINVS",
	"MMIO",
	"MMIOPortSpace",
	"PalCode",
	"Persistent",
	"Unaccepted",
}

// String implements fmt.Stringer.
func (t MemoryType) String() string {
	if t < maxMemoryType {
		return memoryTypeNames[t]
	}
	return fmt.Sprintf("MemoryType(%d)", uint32(t))
}

// ParseMemoryType returns the MemoryType whose String() matches name.
func ParseMemoryType(name string) (MemoryType, bool) {
	for t, typeName := range memoryTypeNames {
		if typeName == name {
			return MemoryType(t), true
		}
	}
	return 0, false
}

// MemoryDescriptor mirrors EFI_MEMORY_DESCRIPTOR.
type MemoryDescriptor struct {
	Type          MemoryType
	_             uint32
	PhysicalStart uint64
	VirtualStart  uint64
	NumberOfPages uint64
	Attribute     uint64
}

// descriptorSize is the size of the descriptor layout known to this package.
// Firmware may report larger descriptors; the extra bytes are skipped.
const descriptorSize = unsafe.Sizeof(MemoryDescriptor{})

var errBadDescriptorSize = &kernel.Error{Module: "efi", Message: "invalid memory map descriptor size"}

// MemoryMap is a view over the descriptor array returned by
// EFI_BOOT_SERVICES.GetMemoryMap.
type MemoryMap struct {
	buf      []byte
	descSize uintptr
}

// NewMemoryMap wraps the descriptor array in buf. descSize is the
// DescriptorSize reported by the firmware. buf must be 8-byte aligned.
func NewMemoryMap(buf []byte, descSize uintptr) (*MemoryMap, *kernel.Error) {
	if descSize < descriptorSize || descSize&7 != 0 {
		return nil, errBadDescriptorSize
	}

	return &MemoryMap{buf: buf, descSize: descSize}, nil
}

// Len returns the number of descriptors in the map.
func (m *MemoryMap) Len() int {
	return int(uintptr(len(m.buf)) / m.descSize)
}

// MemoryDescriptorVisitor is invoked by Visit for each descriptor. Returning
// false stops the iteration.
type MemoryDescriptorVisitor func(desc *MemoryDescriptor) bool

// Visit invokes visitor for each descriptor in the map.
func (m *MemoryMap) Visit(visitor MemoryDescriptorVisitor) {
	for off, n := uintptr(0), m.Len(); n > 0; off, n = off+m.descSize, n-1 {
		if !visitor((*MemoryDescriptor)(unsafe.Pointer(&m.buf[off]))) {
			return
		}
	}
}

// EncodeMemoryMap lays out descs as a firmware-style descriptor array using
// the supplied descriptor stride. It is used to replay memory maps captured
// from real machines.
func EncodeMemoryMap(descs []MemoryDescriptor, descSize uintptr) (*MemoryMap, *kernel.Error) {
	if descSize < descriptorSize || descSize&7 != 0 {
		return nil, errBadDescriptorSize
	}

	// Back the buffer with words so descriptors are naturally aligned.
	words := make([]uint64, uintptr(len(descs))*descSize/8)
	var buf []byte
	if len(words) > 0 {
		buf = unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*8)
	}

	for i := range descs {
		*(*MemoryDescriptor)(unsafe.Pointer(&buf[uintptr(i)*descSize])) = descs[i]
	}

	return NewMemoryMap(buf, descSize)
}
