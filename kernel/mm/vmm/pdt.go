// Package vmm builds the x86-64 page table hierarchy used once the kernel
// switches to its own address space.
package vmm

import (
	"math"

	"github.com/TonyChenSmith/aos-sub001/kernel"
	"github.com/TonyChenSmith/aos-sub001/kernel/cpu"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/physmem"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/pmm"
	"gvisor.dev/gvisor/pkg/log"
)

var (
	// ErrUnsupportedTopology is returned when a mapping needs a paging
	// feature that the CPU does not support.
	ErrUnsupportedTopology = &kernel.Error{Module: "vmm", Message: "paging feature not supported by the CPU"}

	// ErrNonCanonical is returned when a virtual range is not canonical for
	// the depth of the hierarchy.
	ErrNonCanonical = &kernel.Error{Module: "vmm", Message: "virtual address range is not canonical"}

	// ErrInvalidMapping is returned when a virtual address does not map to
	// a physical page.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errUnalignedMapping = &kernel.Error{Module: "vmm", Message: "mapping addresses must be page-aligned"}
	errPhysRange        = &kernel.Error{Module: "vmm", Message: "physical range exceeds the 52-bit address space"}
)

// HugePolicy controls which huge leaf sizes the builder may emit. Runs are
// always mapped with 4KiB pages unless the physical and virtual addresses are
// both aligned to a permitted huge size and at least that many bytes remain;
// larger sizes are preferred over smaller ones.
type HugePolicy uint8

const (
	// HugeAuto permits 2MiB leaves and, if the CPU supports them, 1GiB
	// leaves.
	HugeAuto HugePolicy = iota

	// HugeNone restricts the builder to 4KiB leaves.
	HugeNone

	// Huge2M permits 2MiB leaves only.
	Huge2M

	// Huge1G permits 2MiB and 1GiB leaves. The CPU must support 1GiB pages.
	Huge1G
)

// String implements fmt.Stringer.
func (p HugePolicy) String() string {
	switch p {
	case HugeNone:
		return "none"
	case Huge2M:
		return "2m"
	case Huge1G:
		return "1g"
	default:
		return "auto"
	}
}

// Options configures a PageDirectoryTable.
type Options struct {
	Huge HugePolicy
}

// PageDirectoryTable builds a page table hierarchy whose tables are carved
// out of a page pool. Table pointers stored in entries are physical; the
// builder reaches tables through the pool's address translator so it keeps
// working after the pool switches to virtual addressing.
type PageDirectoryTable struct {
	pool     *pmm.PagePool
	mem      physmem.Memory
	xlate    *pmm.Translator
	features cpu.Features
	levels   []level

	// maxLeafShift is the shift of the largest leaf the builder may emit.
	maxLeafShift uint

	root     uintptr
	rootPhys uintptr
}

// NewPageDirectoryTable allocates an empty top-level table from pool. The
// depth of the hierarchy is decided here, once: 5 levels if the CPU supports
// LA57 and the LA57 bit is set in cr4, 4 levels otherwise.
func NewPageDirectoryTable(pool *pmm.PagePool, features cpu.Features, cr4 uint64, opts Options) (*PageDirectoryTable, *kernel.Error) {
	if cr4&cpu.CR4LA57 != 0 && !features.LA57 {
		return nil, ErrUnsupportedTopology
	}

	pdt := &PageDirectoryTable{
		pool:     pool,
		mem:      pool.Memory(),
		xlate:    pool.Translator(),
		features: features,
		levels:   levelsFor(features.FiveLevel(cr4)),
	}

	switch opts.Huge {
	case HugeNone:
		pdt.maxLeafShift = mm.PageShift
	case Huge2M:
		pdt.maxLeafShift = pagingLevels[3].shift
	case Huge1G:
		if !features.Page1GB {
			return nil, ErrUnsupportedTopology
		}
		pdt.maxLeafShift = pagingLevels[2].shift
	default:
		pdt.maxLeafShift = pagingLevels[3].shift
		if features.Page1GB {
			pdt.maxLeafShift = pagingLevels[2].shift
		}
	}

	root, err := pool.Alloc()
	if err != nil {
		return nil, err
	}
	pdt.root = root
	pdt.rootPhys = pdt.xlate.ToPhysical(root)

	log.Infof("[vmm] %d-level page tables, top-level table at 0x%x, huge pages: %s", len(pdt.levels), pdt.rootPhys, opts.Huge)
	return pdt, nil
}

// Levels returns the depth of the hierarchy.
func (pdt *PageDirectoryTable) Levels() int {
	return len(pdt.levels)
}

// Root returns the usable address of the top-level table.
func (pdt *PageDirectoryTable) Root() uintptr {
	return pdt.root
}

// RootPhysical returns the physical address of the top-level table. This is
// the value loaded into CR3.
func (pdt *PageDirectoryTable) RootPhysical() uintptr {
	return pdt.rootPhys
}

// Rebase recomputes the usable address of the top-level table after the
// page pool changed its frame of reference.
func (pdt *PageDirectoryTable) Rebase() {
	pdt.root = pdt.xlate.ToUsable(pdt.rootPhys)
}

// Map establishes a mapping of pages contiguous 4KiB pages starting at the
// physical address paddr to the virtual address vaddr. Missing tables are
// allocated from the page pool. Map returns the number of pages mapped which
// on success always equals pages.
//
// Failing to allocate a table leaves the hierarchy partially built; callers
// must treat any error as fatal.
func (pdt *PageDirectoryTable) Map(paddr, vaddr uintptr, pages uint64, attr Attr) (uint64, *kernel.Error) {
	if pages == 0 {
		return 0, nil
	}

	if !mm.IsPageAligned(paddr) || !mm.IsPageAligned(vaddr) {
		return 0, errUnalignedMapping
	}

	if attr&AttrGlobal != 0 && !pdt.features.GlobalPages {
		return 0, ErrUnsupportedTopology
	}

	if pages > uint64(math.MaxUint64-uint64(vaddr))>>mm.PageShift+1 || !pdt.canonicalRange(vaddr, vaddr+uintptr(pages-1)<<mm.PageShift) {
		return 0, ErrNonCanonical
	}

	if uint64(paddr) >= maxPhysAddr || pages > (maxPhysAddr-uint64(paddr))>>mm.PageShift {
		return 0, errPhysRange
	}

	var mapped uint64
	for mapped < pages {
		offset := uintptr(mapped) << mm.PageShift
		n, err := pdt.mapLevel(0, pdt.root, paddr+offset, vaddr+offset, pages-mapped, attr)
		if err != nil {
			log.Warningf("[vmm] failed to map 0x%x -> 0x%x (%d pages): %s", vaddr, paddr, pages, err.Message)
			return 0, err
		}
		mapped += n
	}

	log.Debugf("[vmm] mapped 0x%x -> 0x%x (%d pages, %s)", vaddr, paddr, pages, attr)
	return mapped, nil
}

// mapLevel maps up to pages pages into the table at the usable address table
// which belongs to the level with the given depth. It stops after filling the
// last entry of the table and returns the number of pages mapped so far so the
// caller can continue with the next entry at its own level.
func (pdt *PageDirectoryTable) mapLevel(depth int, table, paddr, vaddr uintptr, pages uint64, attr Attr) (uint64, *kernel.Error) {
	var (
		lvl    = &pdt.levels[depth]
		isLeaf = depth == len(pdt.levels)-1
		mapped uint64
	)

	for mapped < pages {
		var (
			index     = lvl.index(vaddr)
			entryAddr = table + index<<mm.PointerShift
			pte       = PageTableEntry(pdt.mem.Load64(entryAddr))
			remaining = pages - mapped
			n         uint64
		)

		switch {
		case isLeaf:
			pdt.mem.Store64(entryAddr, uint64(newEntry(paddr, attr.leafFlags(false, pdt.features.NX))))
			n = 1
		case pte.HasFlags(FlagPresent):
			if lvl.hugeLeaf && pte.HasFlags(FlagHugePage) {
				// Already covered by a huge leaf; skip the rest of its span.
				n = uint64(lvl.span()-vaddr&(lvl.span()-1)) >> mm.PageShift
				if n > remaining {
					n = remaining
				}
				break
			}

			var err *kernel.Error
			if n, err = pdt.mapLevel(depth+1, pdt.xlate.ToUsable(pte.Address()), paddr, vaddr, remaining, attr); err != nil {
				return 0, err
			}
		case pdt.canUseHugeLeaf(lvl, paddr, vaddr, remaining):
			pdt.mem.Store64(entryAddr, uint64(newEntry(paddr, attr.leafFlags(true, pdt.features.NX)|FlagHugePage)))
			n = lvl.pages()
		default:
			next, err := pdt.pool.Alloc()
			if err != nil {
				return 0, err
			}
			pdt.mem.Store64(entryAddr, uint64(newEntry(pdt.xlate.ToPhysical(next), intermediateFlags)))

			if n, err = pdt.mapLevel(depth+1, next, paddr, vaddr, remaining, attr); err != nil {
				return 0, err
			}
		}

		mapped += n
		paddr += uintptr(n) << mm.PageShift
		vaddr += uintptr(n) << mm.PageShift

		if index == mm.EntriesPerTable-1 {
			break
		}
	}

	return mapped, nil
}

// canUseHugeLeaf returns true if the run starting at (paddr, vaddr) can be
// mapped by a single leaf entry at level lvl.
func (pdt *PageDirectoryTable) canUseHugeLeaf(lvl *level, paddr, vaddr uintptr, remaining uint64) bool {
	if !lvl.hugeLeaf || lvl.shift > pdt.maxLeafShift {
		return false
	}

	mask := lvl.span() - 1
	return paddr&mask == 0 && vaddr&mask == 0 && remaining >= lvl.pages()
}

// canonicalRange returns true if every address in [first, last] is canonical
// for the hierarchy depth, i.e. the range does not straddle the hole between
// the lower and upper halves of the address space.
func (pdt *PageDirectoryTable) canonicalRange(first, last uintptr) bool {
	// Bits above the top level's index must all match the index's top bit.
	signShift := pdt.levels[0].shift + 8
	firstSign, lastSign := int64(first)>>signShift, int64(last)>>signShift
	return (firstSign == 0 || firstSign == -1) && firstSign == lastSign
}
