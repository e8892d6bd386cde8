// Package physmem provides accessors for the memory that backs page tables
// while the boot address space is being built.
//
// On real hardware the page pool is reached through plain pointer
// dereferences (see Direct). The other implementations back the same
// interface with host memory so the allocator and page table builder can be
// exercised outside of ring 0.
package physmem

import (
	"github.com/TonyChenSmith/aos-sub001/kernel"
)

// Memory provides word-level access to memory at usable addresses. A usable
// address is whatever the active frame of reference says it is: a physical
// address before the switch to virtual addressing and a virtual address
// afterwards.
//
// Accesses to addresses that are not backed by the implementation are faults
// and cause a panic with a *kernel.Error value.
type Memory interface {
	// Load64 reads the 64-bit little-endian word at addr. addr must be
	// 8-byte aligned.
	Load64(addr uintptr) uint64

	// Store64 writes the 64-bit little-endian word val to addr. addr must
	// be 8-byte aligned.
	Store64(addr uintptr, val uint64)

	// Zero clears size bytes starting at addr.
	Zero(addr uintptr, size uintptr)
}

var (
	// ErrUnalignedAccess is raised when a word access is not 8-byte aligned.
	ErrUnalignedAccess = &kernel.Error{Module: "physmem", Message: "unaligned word access"}

	// ErrAccessOutOfRange is raised when an access falls outside the memory
	// backed by an accessor.
	ErrAccessOutOfRange = &kernel.Error{Module: "physmem", Message: "access outside of backed memory"}
)

func checkAlign(addr uintptr) {
	if addr&7 != 0 {
		panic(ErrUnalignedAccess)
	}
}
