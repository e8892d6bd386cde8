package vmm

import (
	"fmt"
	"io"

	"github.com/TonyChenSmith/aos-sub001/kernel/kfmt"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm"
)

// leafRun is a sequence of leaf entries that map contiguous physical memory
// with identical attributes.
type leafRun struct {
	lvl          *level
	vstart, vend uintptr
	pstart       uintptr
	attr         Attr
}

func (r *leafRun) extends(lvl *level, vaddr, paddr uintptr, attr Attr) bool {
	return r.lvl == lvl && r.attr == attr && r.vend == vaddr && r.pstart+(r.vend-r.vstart) == paddr
}

func (r *leafRun) print(w io.Writer) {
	fmt.Fprintf(w, "0x%016x-0x%016x -> 0x%x [%s x%d] %s\n", r.vstart, r.vend, r.pstart, r.lvl.name, (r.vend-r.vstart)>>r.lvl.shift, r.attr)
}

// Dump writes every present entry of the hierarchy to w, indenting each
// level. Runs of leaves that map contiguous physical memory with the same
// attributes are coalesced into a single line.
func (pdt *PageDirectoryTable) Dump(w io.Writer) {
	fmt.Fprintf(w, "%s at 0x%x\n", pdt.levels[0].name, pdt.rootPhys)
	pdt.dumpTable(&kfmt.PrefixWriter{Sink: w, Prefix: []byte("  ")}, 0, pdt.root, 0)
}

func (pdt *PageDirectoryTable) dumpTable(w io.Writer, depth int, table, vbase uintptr) {
	var (
		lvl = &pdt.levels[depth]
		run *leafRun
	)

	flush := func() {
		if run != nil {
			run.print(w)
			run = nil
		}
	}

	for index := uintptr(0); index < mm.EntriesPerTable; index++ {
		pte := PageTableEntry(pdt.mem.Load64(table + index<<mm.PointerShift))
		if !pte.HasFlags(FlagPresent) {
			flush()
			continue
		}

		vaddr := pdt.signExtend(vbase | index<<lvl.shift)
		huge := lvl.hugeLeaf && pte.HasFlags(FlagHugePage)
		if depth < len(pdt.levels)-1 && !huge {
			flush()
			fmt.Fprintf(w, "%s[%d] -> 0x%x\n", lvl.name, index, pte.Address())
			pdt.dumpTable(&kfmt.PrefixWriter{Sink: w, Prefix: []byte("  ")}, depth+1, pdt.xlate.ToUsable(pte.Address()), vaddr)
			continue
		}

		paddr := pte.Address() &^ (lvl.span() - 1)
		attr := attrFromEntry(pte, huge)
		if run != nil && run.extends(lvl, vaddr, paddr, attr) {
			run.vend += lvl.span()
			continue
		}

		flush()
		run = &leafRun{lvl: lvl, vstart: vaddr, vend: vaddr + lvl.span(), pstart: paddr, attr: attr}
	}

	flush()
}

// signExtend returns the canonical form of vaddr for the hierarchy depth.
func (pdt *PageDirectoryTable) signExtend(vaddr uintptr) uintptr {
	unused := 63 - (pdt.levels[0].shift + 8)
	return uintptr(int64(vaddr<<unused) >> unused)
}
