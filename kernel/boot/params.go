package boot

import (
	"github.com/TonyChenSmith/aos-sub001/kernel/cpu"
	"github.com/TonyChenSmith/aos-sub001/kernel/hal/efi"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/vmm"
)

// Region describes a run of physical pages.
type Region struct {
	Base  uintptr
	Pages uint64
}

// End returns the first address past the region.
func (r Region) End() uintptr {
	return r.Base + uintptr(r.Pages)<<mm.PageShift
}

// Mapping is a single entry of the boot mapping plan: a physical range that
// must be reachable at a virtual address once the kernel takes over.
type Mapping struct {
	// Name identifies the mapping in log output (e.g. "kernel-text").
	Name string

	// Phys is the page-aligned physical address of the range.
	Phys uintptr

	// Virt is the page-aligned virtual address of the range. A zero value
	// requests an address from the boot reservation window; the chosen
	// address is written back here.
	Virt uintptr

	Pages uint64
	Attr  vmm.Attr
}

// Params is the boot parameter block. It is filled in by the earlier boot
// stages and written back with the results of building the address space.
type Params struct {
	// FreeRegion is the free physical region the page pool is carved
	// from. On return it is shrunk by the pages taken by the pool.
	FreeRegion Region

	// Features and CR4 describe the paging capabilities of the boot CPU
	// and whether 5-level paging has been enabled.
	Features cpu.Features
	CR4      uint64

	// MemoryMap is the firmware memory map used to seed the memory
	// registry. It may be nil.
	MemoryMap *efi.MemoryMap

	// Plan lists the ranges mapped into the new address space.
	Plan []Mapping

	// PoolVirtualBase is the virtual address the page pool is mapped at
	// and rebased to when the CPU starts translating through the new
	// tables. A zero value requests an address from the boot reservation
	// window; the chosen address is written back here.
	PoolVirtualBase uintptr

	// Huge selects which huge page sizes the table builder may emit.
	Huge vmm.HugePolicy

	// Debug enables the page pool's debug checks.
	Debug bool

	// TopTable receives the physical address of the top-level page table.
	TopTable uintptr
}
