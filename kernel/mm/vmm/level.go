package vmm

import "github.com/TonyChenSmith/aos-sub001/kernel/mm"

// level describes one level of the paging hierarchy.
type level struct {
	name string

	// shift is the position of the level's 9-bit index inside a virtual
	// address.
	shift uint

	// hugeLeaf is set if entries at this level may terminate the walk.
	hugeLeaf bool
}

// pagingLevels lists every level from PML5 down to PT. 4-level hierarchies
// use the table without its first entry.
var pagingLevels = [...]level{
	{name: "PML5", shift: 48},
	{name: "PML4", shift: 39},
	{name: "PDPT", shift: 30, hugeLeaf: true},
	{name: "PD", shift: 21, hugeLeaf: true},
	{name: "PT", shift: 12},
}

// levelsFor returns the levels used by a hierarchy with the given depth.
func levelsFor(fiveLevel bool) []level {
	if fiveLevel {
		return pagingLevels[:]
	}
	return pagingLevels[1:]
}

// index returns the entry index for vaddr in a table at this level.
func (l *level) index(vaddr uintptr) uintptr {
	return (vaddr >> l.shift) & (mm.EntriesPerTable - 1)
}

// span returns the number of bytes mapped by a single entry at this level.
func (l *level) span() uintptr {
	return 1 << l.shift
}

// pages returns the number of 4KiB pages mapped by a single entry at this level.
func (l *level) pages() uint64 {
	return 1 << (l.shift - mm.PageShift)
}
