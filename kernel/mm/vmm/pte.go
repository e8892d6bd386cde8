package vmm

import "github.com/TonyChenSmith/aos-sub001/kernel/mm"

// PageTableEntryFlag describes a flag that can be applied to a page table
// entry. The same bit layout is shared by all paging levels; bits whose
// meaning depends on the level are noted below.
type PageTableEntryFlag uint64

const (
	// FlagPresent is set when the entry maps a page or points to a table.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode code can access this page. If
	// not set only kernel code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and write-back
	// caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when a leaf page is modified.
	FlagDirty

	// FlagHugePage terminates the walk at a PDPT (1GiB) or PD (2MiB) entry.
	// In a PT entry the same bit selects the PAT entry instead.
	FlagHugePage

	// FlagGlobal, if set, keeps the TLB entry for a leaf page when CR3 is
	// reloaded.
	FlagGlobal

	// FlagPAT selects the PAT entry of a 4KiB leaf.
	FlagPAT = FlagHugePage

	// FlagHugePAT selects the PAT entry of a 2MiB or 1GiB leaf.
	FlagHugePAT PageTableEntryFlag = 1 << 12

	// FlagNoExecute, if set, prevents instruction fetches from the page.
	FlagNoExecute PageTableEntryFlag = 1 << 63
)

const (
	// ptePhysPageMask extracts the physical address stored in bits 12-51
	// of an entry.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// maxPhysAddr is the first address past the 52-bit physical address
	// space.
	maxPhysAddr = uint64(1) << 52

	// intermediateFlags are applied to every non-leaf entry so that
	// permissions are only enforced by the leaf.
	intermediateFlags = FlagPresent | FlagRW | FlagUserAccessible
)

// PageTableEntry is a single 64-bit entry of a page table at any level.
type PageTableEntry uint64

// HasFlags returns true if this entry has all the input flags set.
func (pte PageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) == uint64(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte PageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) != 0
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *PageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = PageTableEntry(uint64(*pte) | uint64(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *PageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = PageTableEntry(uint64(*pte) &^ uint64(flags))
}

// Address returns the physical address stored in this entry. For huge leaf
// entries the caller must additionally mask off the bits below the leaf size
// as bit 12 holds FlagHugePAT.
func (pte PageTableEntry) Address() uintptr {
	return uintptr(pte) & ptePhysPageMask
}

// SetAddress updates the physical address stored in this entry.
func (pte *PageTableEntry) SetAddress(paddr uintptr) {
	*pte = PageTableEntry((uintptr(*pte) &^ ptePhysPageMask) | (paddr & ptePhysPageMask))
}

// Frame returns the physical frame stored in this entry.
func (pte PageTableEntry) Frame() mm.Frame {
	return mm.FrameFromAddress(pte.Address())
}

// newEntry returns a present entry pointing to paddr with the supplied flags.
func newEntry(paddr uintptr, flags PageTableEntryFlag) PageTableEntry {
	var pte PageTableEntry
	pte.SetAddress(paddr)
	pte.SetFlags(FlagPresent | flags)
	return pte
}
