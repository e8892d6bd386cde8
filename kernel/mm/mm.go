// Package mm contains the page-granular types and constants shared by the
// boot memory core.
package mm

const (
	// PointerShift is equal to log2(size of a page table entry).
	PointerShift = 3

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)

	// EntriesPerTable is the number of entries in a page table at any level.
	EntriesPerTable = PageSize >> PointerShift
)

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// Pages returns the number of pages that are required for storing this size.
func (s Size) Pages() uint64 {
	return uint64(s+Size(PageSize-1)) >> PageShift
}

// PageAlignDown rounds addr down to a page boundary.
func PageAlignDown(addr uintptr) uintptr {
	return addr &^ (PageSize - 1)
}

// PageAlignUp rounds addr up to the next page boundary.
func PageAlignUp(addr uintptr) uintptr {
	return (addr + PageSize - 1) &^ (PageSize - 1)
}

// IsPageAligned returns true if addr lies on a page boundary.
func IsPageAligned(addr uintptr) bool {
	return addr&(PageSize-1) == 0
}
