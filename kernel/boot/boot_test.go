package boot

import (
	"testing"

	"github.com/TonyChenSmith/aos-sub001/kernel"
	"github.com/TonyChenSmith/aos-sub001/kernel/cpu"
	"github.com/TonyChenSmith/aos-sub001/kernel/hal/efi"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/memmap"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/physmem"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/pmm"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/vmm"
	"github.com/google/go-cmp/cmp"
)

const (
	freeBase        = uintptr(0x1000000)
	freePages       = uint64(0x2000)
	poolPhysBase    = uintptr(0x2800000)
	poolVirtualBase = uintptr(0xffff800000000000)
	topTablePhys    = poolPhysBase + uintptr(pmm.PoolSize) - mm.PageSize
)

var testFeatures = cpu.Features{GlobalPages: true, NX: true}

func testMemoryMap(t *testing.T) *efi.MemoryMap {
	return encodeMemoryMap(t,
		efi.MemoryDescriptor{Type: efi.ConventionalMemory, PhysicalStart: 0x0, NumberOfPages: 0xa0},
		efi.MemoryDescriptor{Type: efi.LoaderCode, PhysicalStart: 0x100000, NumberOfPages: 0x100},
		efi.MemoryDescriptor{Type: efi.ConventionalMemory, PhysicalStart: 0x200000, NumberOfPages: 0x3e00},
		efi.MemoryDescriptor{Type: efi.RuntimeServicesData, PhysicalStart: 0x4000000, NumberOfPages: 0x10},
	)
}

func encodeMemoryMap(t *testing.T, descs ...efi.MemoryDescriptor) *efi.MemoryMap {
	t.Helper()

	memMap, err := efi.EncodeMemoryMap(descs, 48)
	if err != nil {
		t.Fatal(err)
	}
	return memMap
}

func testParams(t *testing.T) *Params {
	return &Params{
		FreeRegion: Region{Base: freeBase, Pages: freePages},
		Features:   testFeatures,
		MemoryMap:  testMemoryMap(t),
		Plan: []Mapping{
			{Name: "kernel-text", Phys: 0x100000, Virt: 0xffffffff80000000, Pages: 4, Attr: vmm.AttrRX | vmm.AttrGlobal},
			{Name: "kernel-data", Phys: 0x104000, Virt: 0xffffffff80004000, Pages: 8, Attr: vmm.AttrRW | vmm.AttrGlobal},
			{Name: "kernel-stack", Phys: 0x200000, Pages: 16, Attr: vmm.AttrRW},
			{Name: "framebuffer", Phys: 0xfd000000, Virt: 0xffffffffc0000000, Pages: 768, Attr: vmm.AttrRW | vmm.CacheWriteCombining},
		},
		PoolVirtualBase: poolVirtualBase,
	}
}

func newSimulation() (*physmem.Sparse, *vmm.MMU) {
	phys := physmem.NewSparse(0)
	return phys, vmm.NewMMU(phys, false)
}

func TestRun(t *testing.T) {
	_, mmu := newSimulation()
	params := testParams(t)

	core, err := Run(params, mmu, mmu)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("parameter write-back", func(t *testing.T) {
		if params.TopTable != topTablePhys {
			t.Errorf("expected top-level table at 0x%x; got 0x%x", topTablePhys, params.TopTable)
		}

		if got := mmu.ActivePDT(); got != params.TopTable {
			t.Errorf("expected CR3 to hold 0x%x; got 0x%x", params.TopTable, got)
		}

		if exp := (Region{Base: freeBase, Pages: freePages - pmm.PoolPages}); params.FreeRegion != exp {
			t.Errorf("expected free region %+v; got %+v", exp, params.FreeRegion)
		}

		if exp := uintptr(0xffffff7fffff0000); params.Plan[2].Virt != exp {
			t.Errorf("expected stack to be placed at 0x%x; got 0x%x", exp, params.Plan[2].Virt)
		}
	})

	t.Run("virtual context", func(t *testing.T) {
		if got := core.Pool.Translator().Context(); got != pmm.Virtual {
			t.Fatalf("expected pool to use virtual addressing; got %s", got)
		}

		if got := core.Pool.Base(); got != poolVirtualBase {
			t.Errorf("expected pool base 0x%x; got 0x%x", poolVirtualBase, got)
		}

		if exp := poolVirtualBase + (topTablePhys - poolPhysBase); core.Tables.Root() != exp {
			t.Errorf("expected top-level table to be rebased to 0x%x; got 0x%x", exp, core.Tables.Root())
		}
	})

	t.Run("plan reachable through the MMU", func(t *testing.T) {
		for _, entry := range params.Plan {
			for page := uint64(0); page < entry.Pages; page++ {
				offset := uintptr(page) << mm.PageShift
				if got := mmu.Translate(entry.Virt+offset, false); got != entry.Phys+offset {
					t.Fatalf("%s: expected 0x%x to translate to 0x%x; got 0x%x", entry.Name, entry.Virt+offset, entry.Phys+offset, got)
				}
			}
		}
	})

	t.Run("allocations after the transition", func(t *testing.T) {
		addr, err := core.Pool.Alloc()
		if err != nil {
			t.Fatal(err)
		}

		if !core.Pool.Contains(addr) || addr < poolVirtualBase {
			t.Fatalf("expected a virtual pool address; got 0x%x", addr)
		}

		mmu.Store64(addr, 0xc0ffee)
		if got := core.Pool.Translator().ToPhysical(addr); mmu.Translate(addr, false) != got {
			t.Fatalf("translator and MMU disagree on the location of 0x%x", addr)
		}

		if _, err := core.Tables.Map(0x300000, 0xffffffff90000000, 2, vmm.AttrRW); err != nil {
			t.Fatal(err)
		}
		if got := mmu.Translate(0xffffffff90001000, true); got != 0x301000 {
			t.Fatalf("expected new mapping to translate to 0x301000; got 0x%x", got)
		}
	})

	t.Run("second transition", func(t *testing.T) {
		if err := core.EnterVirtual(poolVirtualBase); err != ErrInvalidSequencing {
			t.Fatalf("expected ErrInvalidSequencing; got %v", err)
		}
		if got := core.Pool.Base(); got != poolVirtualBase {
			t.Fatalf("expected pool base to remain 0x%x; got 0x%x", poolVirtualBase, got)
		}
	})
}

func TestInitRegistry(t *testing.T) {
	_, mmu := newSimulation()

	core, err := Init(testParams(t), mmu, mmu)
	if err != nil {
		t.Fatal(err)
	}

	exp := []memmap.Extent{
		{Base: 0x0, Pages: 0xa0, Type: memmap.TypeAvailable},
		{Base: 0x100000, Pages: 0x2700, Type: memmap.TypeAvailable},
		{Base: poolPhysBase, Pages: pmm.PoolPages, Type: memmap.TypeKernelData},
		{Base: 0x3000000, Pages: 0x1000, Type: memmap.TypeAvailable},
		{Base: 0x4000000, Pages: 0x10, Type: memmap.TypeReserved},
	}
	if diff := cmp.Diff(exp, core.Registry.Extents()); diff != "" {
		t.Errorf("unexpected registry contents (-want +got):\n%s", diff)
	}

	if err := core.Registry.Verify(); err != nil {
		t.Errorf("unexpected Verify error: %v", err)
	}
}

func TestInitSmallRegion(t *testing.T) {
	_, mmu := newSimulation()

	params := testParams(t)
	params.MemoryMap = nil
	params.FreeRegion = Region{Base: freeBase, Pages: 0x100}

	core, err := Init(params, mmu, mmu)
	if err != nil {
		t.Fatal(err)
	}

	if got := core.Pool.Base(); got != freeBase {
		t.Errorf("expected pool to start at the region base 0x%x; got 0x%x", freeBase, got)
	}

	// The top-level table takes the highest backed frame.
	if exp := freeBase + 0xff000; core.Tables.RootPhysical() != exp {
		t.Errorf("expected top-level table at 0x%x; got 0x%x", exp, core.Tables.RootPhysical())
	}

	if exp := uint64(0xff); core.Pool.FreePages() != exp {
		t.Errorf("expected %d free pool pages; got %d", exp, core.Pool.FreePages())
	}

	if params.FreeRegion.Pages != 0 {
		t.Errorf("expected the whole region to be consumed; %d pages left", params.FreeRegion.Pages)
	}

	exp := []memmap.Extent{{Base: freeBase, Pages: 0x100, Type: memmap.TypeKernelData}}
	if diff := cmp.Diff(exp, core.Registry.Extents()); diff != "" {
		t.Errorf("unexpected registry contents (-want +got):\n%s", diff)
	}
}

func TestInitErrors(t *testing.T) {
	fullMap := func(t *testing.T) *efi.MemoryMap {
		descs := make([]efi.MemoryDescriptor, memmap.Capacity+1)
		for i := range descs {
			typ := efi.ConventionalMemory
			if i%2 == 1 {
				typ = efi.UnusableMemory
			}
			descs[i] = efi.MemoryDescriptor{Type: typ, PhysicalStart: uint64(i) << 12, NumberOfPages: 1}
		}
		return encodeMemoryMap(t, descs...)
	}

	specs := []struct {
		name   string
		mutate func(t *testing.T, params *Params)
		expErr *kernel.Error
	}{
		{
			"empty free region",
			func(_ *testing.T, params *Params) { params.FreeRegion.Pages = 0 },
			ErrNoFreeRegion,
		},
		{
			"unaligned free region",
			func(_ *testing.T, params *Params) { params.FreeRegion.Base += 0x800 },
			ErrNoFreeRegion,
		},
		{
			"LA57 enabled without support",
			func(_ *testing.T, params *Params) { params.CR4 = cpu.CR4LA57 },
			vmm.ErrUnsupportedTopology,
		},
		{
			"1GiB pages without support",
			func(_ *testing.T, params *Params) { params.Huge = vmm.Huge1G },
			vmm.ErrUnsupportedTopology,
		},
		{
			"registry overflow",
			func(t *testing.T, params *Params) { params.MemoryMap = fullMap(t) },
			memmap.ErrRegistryFull,
		},
		{
			"pool extent cannot be split",
			func(t *testing.T, params *Params) {
				descs := make([]efi.MemoryDescriptor, 0, memmap.Capacity)
				for i := 0; i < memmap.Capacity-1; i++ {
					typ := efi.ConventionalMemory
					if i%2 == 1 {
						typ = efi.UnusableMemory
					}
					descs = append(descs, efi.MemoryDescriptor{Type: typ, PhysicalStart: uint64(i) << 12, NumberOfPages: 1})
				}
				descs = append(descs, efi.MemoryDescriptor{Type: efi.ConventionalMemory, PhysicalStart: uint64(freeBase), NumberOfPages: freePages})
				params.MemoryMap = encodeMemoryMap(t, descs...)
			},
			ErrRegistryFull,
		},
		{
			"pool straddles two extents",
			func(t *testing.T, params *Params) {
				params.MemoryMap = encodeMemoryMap(t,
					efi.MemoryDescriptor{Type: efi.ConventionalMemory, PhysicalStart: 0x1000000, NumberOfPages: 0xe00},
					efi.MemoryDescriptor{Type: efi.ACPIReclaimMemory, PhysicalStart: 0x1e00000, NumberOfPages: 0x200},
				)
				params.FreeRegion = Region{Base: 0x1000000, Pages: 0x1000}
			},
			errPoolRegionUnclassified,
		},
		{
			"pool overlaps an extent above its base",
			func(t *testing.T, params *Params) {
				params.MemoryMap = encodeMemoryMap(t,
					efi.MemoryDescriptor{Type: efi.ACPIReclaimMemory, PhysicalStart: 0x2c00000, NumberOfPages: 0x10},
				)
			},
			errPoolRegionUnclassified,
		},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			_, mmu := newSimulation()
			params := testParams(t)
			spec.mutate(t, params)

			if _, err := Init(params, mmu, mmu); err != spec.expErr {
				t.Fatalf("expected error %v; got %v", spec.expErr, err)
			}
		})
	}
}

func TestRunPlanError(t *testing.T) {
	_, mmu := newSimulation()

	params := testParams(t)
	params.Plan[1].Phys += 0x10

	if _, err := Run(params, mmu, mmu); err == nil {
		t.Fatal("expected Run to fail for an unaligned plan entry")
	}

	if params.TopTable != 0 {
		t.Errorf("expected top-level table not to be reported; got 0x%x", params.TopTable)
	}

	if mmu.ActivePDT() != 0 {
		t.Error("expected CR3 not to be loaded")
	}
}

func TestEnterVirtualBeforeActivate(t *testing.T) {
	_, mmu := newSimulation()

	core, err := Init(testParams(t), mmu, mmu)
	if err != nil {
		t.Fatal(err)
	}

	if err = core.MapPlan(); err != nil {
		t.Fatal(err)
	}

	if err = core.EnterVirtual(poolVirtualBase); err != ErrInvalidSequencing {
		t.Fatalf("expected ErrInvalidSequencing; got %v", err)
	}

	if got := core.Pool.Translator().Context(); got != pmm.Physical {
		t.Fatalf("expected pool to remain in the physical context; got %s", got)
	}

	core.Activate()
	if err = core.EnterVirtual(poolVirtualBase); err != nil {
		t.Fatal(err)
	}
}

func TestEnterVirtualPoolBase(t *testing.T) {
	t.Run("unmapped base", func(t *testing.T) {
		_, mmu := newSimulation()

		core, err := Init(testParams(t), mmu, mmu)
		if err != nil {
			t.Fatal(err)
		}
		if err = core.MapPlan(); err != nil {
			t.Fatal(err)
		}
		core.Activate()

		if err = core.EnterVirtual(poolVirtualBase + 0x200000); err != ErrInvalidSequencing {
			t.Fatalf("expected ErrInvalidSequencing; got %v", err)
		}
		if got := core.Pool.Translator().Context(); got != pmm.Physical {
			t.Fatalf("expected pool to remain in the physical context; got %s", got)
		}

		if err = core.EnterVirtual(poolVirtualBase); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("pool never mapped", func(t *testing.T) {
		_, mmu := newSimulation()

		core, err := Init(testParams(t), mmu, mmu)
		if err != nil {
			t.Fatal(err)
		}
		core.Activate()

		if err = core.EnterVirtual(poolVirtualBase); err != ErrInvalidSequencing {
			t.Fatalf("expected ErrInvalidSequencing; got %v", err)
		}
	})
}

func TestPoolVirtualBaseReservation(t *testing.T) {
	_, mmu := newSimulation()

	params := testParams(t)
	params.Plan = params.Plan[2:3]
	params.PoolVirtualBase = 0

	core, err := Run(params, mmu, mmu)
	if err != nil {
		t.Fatal(err)
	}

	// The stack and its guard page sit directly below the window top.
	exp := uintptr(0xffffff7fffff0000) - mm.PageSize - uintptr(pmm.PoolSize)
	if params.PoolVirtualBase != exp {
		t.Fatalf("expected pool to be placed at 0x%x; got 0x%x", exp, params.PoolVirtualBase)
	}

	if core.Pool.Base() != exp {
		t.Fatalf("expected pool base 0x%x; got 0x%x", exp, core.Pool.Base())
	}
}

func TestCPUPaging(t *testing.T) {
	var cr3 uintptr

	defer func(origSwitch func(uintptr), origActive func() uintptr) {
		switchPDTFn = origSwitch
		activePDTFn = origActive
	}(switchPDTFn, activePDTFn)

	switchPDTFn = func(pdtPhysAddr uintptr) { cr3 = pdtPhysAddr }
	activePDTFn = func() uintptr { return cr3 }

	params := testParams(t)
	params.Plan = nil

	core, err := Run(params, physmem.NewSparse(0), nil)
	if err != nil {
		t.Fatal(err)
	}

	if cr3 != topTablePhys {
		t.Fatalf("expected CR3 to be loaded with 0x%x; got 0x%x", topTablePhys, cr3)
	}

	if got := core.Pool.Translator().Context(); got != pmm.Virtual {
		t.Fatalf("expected pool to use virtual addressing; got %s", got)
	}
}
