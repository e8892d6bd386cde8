package vmm

import (
	"github.com/TonyChenSmith/aos-sub001/kernel"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/physmem"
)

var (
	// ErrPageFault is raised by the MMU when an access hits an unmapped
	// virtual address.
	ErrPageFault = &kernel.Error{Module: "mmu", Message: "page fault: address not mapped"}

	// ErrProtectionFault is raised by the MMU when a write hits a
	// read-only mapping.
	ErrProtectionFault = &kernel.Error{Module: "mmu", Message: "page fault: write to read-only page"}
)

// MMU simulates the address translation performed by the CPU on top of a
// physical memory accessor. Until SwitchPDT is called accesses are identity
// mapped, matching the firmware's view of memory. Afterwards every access is
// translated through the page tables rooted at the loaded CR3 value, reading
// the tables straight from physical memory.
//
// MMU implements physmem.Memory so it can be handed to the page pool in place
// of direct memory access.
type MMU struct {
	phys    physmem.Memory
	levels  []level
	cr3     uintptr
	enabled bool
}

// NewMMU returns an MMU that walks 5-level tables if fiveLevel is set and
// 4-level tables otherwise.
func NewMMU(phys physmem.Memory, fiveLevel bool) *MMU {
	return &MMU{phys: phys, levels: levelsFor(fiveLevel)}
}

// SwitchPDT loads the physical address of a top-level table into the
// simulated CR3 register and enables translation.
func (m *MMU) SwitchPDT(pdtPhysAddr uintptr) {
	m.cr3 = pdtPhysAddr
	m.enabled = true
}

// ActivePDT returns the simulated CR3 contents.
func (m *MMU) ActivePDT() uintptr {
	return m.cr3
}

// Translate returns the physical address for vaddr, raising a fault if the
// address is not mapped or a write hits a read-only page.
func (m *MMU) Translate(vaddr uintptr, write bool) uintptr {
	if !m.enabled {
		return vaddr
	}

	res := walk(m.phys, m.levels, m.cr3, vaddr, func(paddr uintptr) uintptr { return paddr }, nil)
	if !res.leaf {
		panic(ErrPageFault)
	}

	if write && !res.pte.HasFlags(FlagRW) {
		panic(ErrProtectionFault)
	}

	return res.physicalAddress(vaddr)
}

// Load64 implements physmem.Memory.
func (m *MMU) Load64(addr uintptr) uint64 {
	return m.phys.Load64(m.Translate(addr, false))
}

// Store64 implements physmem.Memory.
func (m *MMU) Store64(addr uintptr, val uint64) {
	m.phys.Store64(m.Translate(addr, true), val)
}

// Zero implements physmem.Memory. The range is translated one page at a time
// as contiguous virtual pages need not be physically contiguous.
func (m *MMU) Zero(addr uintptr, size uintptr) {
	for size > 0 {
		chunk := mm.PageSize - addr&(mm.PageSize-1)
		if chunk > size {
			chunk = size
		}

		m.phys.Zero(m.Translate(addr, true), chunk)
		addr += chunk
		size -= chunk
	}
}
