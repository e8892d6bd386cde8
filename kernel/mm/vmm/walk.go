package vmm

import (
	"github.com/TonyChenSmith/aos-sub001/kernel"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/physmem"
)

// PageTableWalker is invoked by Walk for each entry on the path to a virtual
// address. levelName identifies the table holding the entry ("PML4", "PT",
// ...). Returning false aborts the walk.
type PageTableWalker func(levelName string, pte PageTableEntry) bool

// walkResult describes the entry that terminated a walk.
type walkResult struct {
	pte  PageTableEntry
	lvl  *level
	leaf bool
}

// walk follows the tables for vaddr starting at the usable address root.
// tableAddr converts the physical table pointers found in entries into
// addresses usable with mem.
func walk(mem physmem.Memory, levels []level, root, vaddr uintptr, tableAddr func(uintptr) uintptr, walkFn PageTableWalker) walkResult {
	table := root
	for depth := range levels {
		lvl := &levels[depth]
		pte := PageTableEntry(mem.Load64(table + lvl.index(vaddr)<<3))

		if walkFn != nil && !walkFn(lvl.name, pte) {
			return walkResult{pte: pte, lvl: lvl}
		}

		if !pte.HasFlags(FlagPresent) {
			return walkResult{pte: pte, lvl: lvl}
		}

		if depth == len(levels)-1 || (lvl.hugeLeaf && pte.HasFlags(FlagHugePage)) {
			return walkResult{pte: pte, lvl: lvl, leaf: true}
		}

		table = tableAddr(pte.Address())
	}

	return walkResult{}
}

// physicalAddress returns the physical address that a leaf entry maps vaddr
// to.
func (r *walkResult) physicalAddress(vaddr uintptr) uintptr {
	mask := r.lvl.span() - 1
	return r.pte.Address()&^mask | vaddr&mask
}

// huge returns true if the walk ended at a huge leaf.
func (r *walkResult) huge() bool {
	return r.leaf && r.lvl.hugeLeaf
}

// Walk performs a page table walk for vaddr, invoking walkFn for each entry
// visited. The walk ends at the first non-present entry or at the leaf.
func (pdt *PageDirectoryTable) Walk(vaddr uintptr, walkFn PageTableWalker) {
	walk(pdt.mem, pdt.levels, pdt.root, vaddr, pdt.xlate.ToUsable, walkFn)
}

// Translate returns the physical address and the attributes of the mapping
// for vaddr or ErrInvalidMapping if vaddr is not mapped.
func (pdt *PageDirectoryTable) Translate(vaddr uintptr) (uintptr, Attr, *kernel.Error) {
	res := walk(pdt.mem, pdt.levels, pdt.root, vaddr, pdt.xlate.ToUsable, nil)
	if !res.leaf {
		return 0, 0, ErrInvalidMapping
	}

	return res.physicalAddress(vaddr), attrFromEntry(res.pte, res.huge()), nil
}
