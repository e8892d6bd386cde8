package vmm

import (
	"github.com/TonyChenSmith/aos-sub001/kernel"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm"
)

var errEarlyReserveNoSpace = &kernel.Error{Module: "early_reserve", Message: "remaining virtual address space not large enough to satisfy reservation request"}

// EarlyReserver hands out page-aligned regions of kernel virtual address
// space for boot-time mappings that have no fixed address, such as stacks.
// Regions are carved from the top of the reserver's range downwards and are
// never returned.
type EarlyReserver struct {
	lastUsed uintptr
	floor    uintptr
}

// NewEarlyReserver returns a reserver for the virtual range [floor, top).
func NewEarlyReserver(floor, top uintptr) *EarlyReserver {
	return &EarlyReserver{lastUsed: mm.PageAlignDown(top), floor: mm.PageAlignUp(floor)}
}

// ReserveRegion reserves a contiguous virtual memory region with the
// requested size and returns its address. If size is not a multiple of
// mm.PageSize it will be automatically rounded up. A guard page is left
// unreserved below each region.
func (r *EarlyReserver) ReserveRegion(size uintptr) (uintptr, *kernel.Error) {
	size = mm.PageAlignUp(size)

	// reserving a region of the requested size (plus its guard page) will
	// cross the floor of the range
	if r.lastUsed < r.floor || size+mm.PageSize > r.lastUsed-r.floor {
		return 0, errEarlyReserveNoSpace
	}

	r.lastUsed -= size
	addr := r.lastUsed
	r.lastUsed -= mm.PageSize
	return addr, nil
}
