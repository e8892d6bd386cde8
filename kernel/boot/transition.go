package boot

import (
	"github.com/TonyChenSmith/aos-sub001/kernel"
	"github.com/TonyChenSmith/aos-sub001/kernel/cpu"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/pmm"
	"gvisor.dev/gvisor/pkg/log"
)

var (
	// activePDTFn is used by tests to override calls to cpu.ActivePDT
	// which will cause a fault if called in user-mode.
	activePDTFn = cpu.ActivePDT

	// switchPDTFn is used by tests to override calls to cpu.SwitchPDT
	// which will cause a fault if called in user-mode.
	switchPDTFn = cpu.SwitchPDT
)

// PagingUnit loads and reports the top-level page table used for address
// translation. vmm.MMU implements it for host simulation.
type PagingUnit interface {
	SwitchPDT(pdtPhysAddr uintptr)
	ActivePDT() uintptr
}

// cpuPaging drives the CR3 register of the current CPU.
type cpuPaging struct{}

func (cpuPaging) SwitchPDT(pdtPhysAddr uintptr) { switchPDTFn(pdtPhysAddr) }
func (cpuPaging) ActivePDT() uintptr            { return activePDTFn() }

// Activate loads the physical address of the top-level table into CR3. From
// this point on every memory access is translated through the new tables.
func (c *Core) Activate() {
	log.Infof("[boot] loading CR3 with 0x%x", c.Tables.RootPhysical())
	c.paging.SwitchPDT(c.Tables.RootPhysical())
}

// EnterVirtual switches the page pool and the page table builder to virtual
// addressing. The current pool base becomes the physical base, newPoolVirtualBase
// becomes the pool base and the top-level table pointer is rebased by the
// same offset. It must be called exactly once, after Activate, with the
// address MapPlan mapped the pool at.
func (c *Core) EnterVirtual(newPoolVirtualBase uintptr) *kernel.Error {
	if active := c.paging.ActivePDT(); active != c.Tables.RootPhysical() {
		log.Warningf("[boot] CR3 holds 0x%x instead of the boot tables at 0x%x", active, c.Tables.RootPhysical())
		return ErrInvalidSequencing
	}

	if c.Pool.Translator().Context() != pmm.Physical {
		return ErrInvalidSequencing
	}

	// Only the address recorded by MapPlan is known to reach the pool.
	if c.poolMapped == 0 || newPoolVirtualBase != c.poolMapped {
		log.Warningf("[boot] page pool is mapped at 0x%x, not at 0x%x", c.poolMapped, newPoolVirtualBase)
		return ErrInvalidSequencing
	}

	if err := c.Pool.EnterVirtual(newPoolVirtualBase); err != nil {
		return err
	}
	c.Tables.Rebase()

	log.Infof("[boot] entered virtual addressing: page pool at 0x%x, top-level table at 0x%x", c.Pool.Base(), c.Tables.Root())
	return nil
}
