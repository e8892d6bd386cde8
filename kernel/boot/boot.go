// Package boot drives the construction of the kernel's boot address space:
// it carves the page pool out of the free region, classifies physical memory,
// maps the boot plan and switches the pool to virtual addressing once the CPU
// translates through the new tables.
package boot

import (
	"github.com/TonyChenSmith/aos-sub001/kernel"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/memmap"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/physmem"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/pmm"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/vmm"
	"gvisor.dev/gvisor/pkg/log"
)

const (
	// reserveFloor and reserveTop delimit the kernel virtual window that
	// hands out addresses for plan entries without a fixed address.
	reserveFloor = uintptr(0xffffff0000000000)
	reserveTop   = uintptr(0xffffff8000000000)
)

var (
	// ErrNoFreeRegion is returned when the boot parameters do not describe
	// a usable free region for the page pool.
	ErrNoFreeRegion = &kernel.Error{Module: "boot", Message: "no usable free region for the page pool"}

	// ErrInvalidSequencing is returned when the switch to virtual
	// addressing is requested before the new tables are active or more
	// than once.
	ErrInvalidSequencing = &kernel.Error{Module: "boot", Message: "virtual transition requested out of sequence"}

	// ErrRegistryFull is returned when the pool region cannot be recorded
	// in the memory registry.
	ErrRegistryFull = memmap.ErrRegistryFull

	errPoolRegionUnclassified = &kernel.Error{Module: "boot", Message: "page pool region is not covered by a single memory map extent"}
)

// Core owns the state built while setting up the boot address space. It is
// created once by Init and used by a single thread of control.
type Core struct {
	Pool     *pmm.PagePool
	Tables   *vmm.PageDirectoryTable
	Registry *memmap.Registry

	params   *Params
	paging   PagingUnit
	reserver *vmm.EarlyReserver

	// poolRegion is the physical range backing the pool.
	poolRegion Region

	// poolMapped is the virtual address the pool was mapped at by MapPlan.
	poolMapped uintptr
}

// Init sets up the page pool, the memory registry and an empty page table
// hierarchy according to params. Memory is reached through mem and the new
// tables are loaded through paging; a nil paging unit selects the CPU.
func Init(params *Params, mem physmem.Memory, paging PagingUnit) (*Core, *kernel.Error) {
	free := params.FreeRegion
	if free.Pages == 0 || !mm.IsPageAligned(free.Base) || free.End() <= free.Base {
		return nil, ErrNoFreeRegion
	}

	if paging == nil {
		paging = cpuPaging{}
	}

	core := &Core{
		Pool:     new(pmm.PagePool),
		Registry: new(memmap.Registry),
		params:   params,
		paging:   paging,
		reserver: vmm.NewEarlyReserver(reserveFloor, reserveTop),
	}

	if params.MemoryMap != nil {
		if err := memmap.Seed(core.Registry, params.MemoryMap); err != nil {
			return nil, err
		}
	}

	// The pool occupies the top of the free region. A region smaller than
	// the pool donates all of its pages.
	core.poolRegion = Region{Base: free.Base, Pages: free.Pages}
	if free.Pages > pmm.PoolPages {
		core.poolRegion = Region{
			Base:  free.End() - uintptr(pmm.PoolSize),
			Pages: pmm.PoolPages,
		}
	}

	core.Pool.Debug = params.Debug
	if err := core.Pool.Init(mem, core.poolRegion.Base, core.poolRegion.Pages); err != nil {
		return nil, err
	}

	if err := core.reservePoolRegion(); err != nil {
		return nil, err
	}
	params.FreeRegion.Pages -= core.poolRegion.Pages

	tables, err := vmm.NewPageDirectoryTable(core.Pool, params.Features, params.CR4, vmm.Options{Huge: params.Huge})
	if err != nil {
		return nil, err
	}
	core.Tables = tables

	return core, nil
}

// reservePoolRegion records the pool frames as kernel data in the registry.
// The pool must either lie inside a single extent or not overlap any extent.
func (c *Core) reservePoolRegion() *kernel.Error {
	base, pages, end := c.poolRegion.Base, c.poolRegion.Pages, c.poolRegion.End()

	if index, found := c.Registry.Find(base); found {
		if c.Registry.At(index).End() < end {
			return errPoolRegionUnclassified
		}
		if !c.Registry.Split(base, pages, memmap.TypeKernelData) {
			return ErrRegistryFull
		}
		return nil
	}

	index := c.Registry.Search(base)
	if index < c.Registry.Len() && c.Registry.At(index).Base < end {
		return errPoolRegionUnclassified
	}
	if !c.Registry.Insert(index, base, pages, memmap.TypeKernelData) {
		return ErrRegistryFull
	}
	c.Registry.Merge(index)
	return nil
}

// MapPlan maps every entry of the boot plan followed by the page pool itself.
// Entries without a virtual address are assigned one from the boot
// reservation window. On success the physical address of the top-level table
// is written back to the boot parameters.
func (c *Core) MapPlan() *kernel.Error {
	for i := range c.params.Plan {
		entry := &c.params.Plan[i]

		if entry.Virt == 0 {
			virt, err := c.reserver.ReserveRegion(uintptr(entry.Pages) << mm.PageShift)
			if err != nil {
				return err
			}
			entry.Virt = virt
		}

		if _, err := c.Tables.Map(entry.Phys, entry.Virt, entry.Pages, entry.Attr); err != nil {
			return err
		}
		log.Infof("[boot] %-12s 0x%016x -> 0x%016x (%d pages, %s)", entry.Name, entry.Virt, entry.Phys, entry.Pages, entry.Attr)
	}

	if c.params.PoolVirtualBase == 0 {
		virt, err := c.reserver.ReserveRegion(uintptr(pmm.PoolSize))
		if err != nil {
			return err
		}
		c.params.PoolVirtualBase = virt
	}

	if _, err := c.Tables.Map(c.poolRegion.Base, c.params.PoolVirtualBase, c.poolRegion.Pages, vmm.AttrRW); err != nil {
		return err
	}
	c.poolMapped = c.params.PoolVirtualBase
	log.Infof("[boot] %-12s 0x%016x -> 0x%016x (%d pages, %s)", "page-pool", c.params.PoolVirtualBase, c.poolRegion.Base, c.poolRegion.Pages, vmm.AttrRW)

	c.params.TopTable = c.Tables.RootPhysical()
	log.Infof("[boot] page tables complete: top-level table at 0x%x, %d pool pages left", c.params.TopTable, c.Pool.FreePages())
	return nil
}

// Run executes the boot memory sequence: Init, MapPlan, Activate and
// EnterVirtual. Any error is returned to the caller, which is expected to
// halt the CPU.
func Run(params *Params, mem physmem.Memory, paging PagingUnit) (*Core, *kernel.Error) {
	core, err := Init(params, mem, paging)
	if err != nil {
		return nil, err
	}

	if err = core.MapPlan(); err != nil {
		return nil, err
	}

	core.Activate()

	if err = core.EnterVirtual(params.PoolVirtualBase); err != nil {
		return nil, err
	}

	return core, nil
}
