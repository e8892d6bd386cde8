package memmap

import (
	"fmt"
	"io"
	"sort"

	"github.com/TonyChenSmith/aos-sub001/kernel"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm"
)

// Capacity is the maximum number of extents held by a Registry.
const Capacity = 256

// Capacity must allow at least one extent; this fails to compile otherwise.
var _ [Capacity - 1]struct{}

var (
	// ErrRegistryFull is returned when an extent cannot be recorded
	// because the registry is at capacity.
	ErrRegistryFull = &kernel.Error{Module: "memmap", Message: "memory registry is full"}

	// ErrUnsorted is returned by Verify if the extents are not sorted by
	// base address.
	ErrUnsorted = &kernel.Error{Module: "memmap", Message: "memory registry is not sorted by base address"}

	// ErrOverlap is returned by Verify if two extents overlap.
	ErrOverlap = &kernel.Error{Module: "memmap", Message: "memory registry contains overlapping extents"}
)

// Registry is a bounded, order-preserving array of memory extents. The
// registry never sorts its contents or checks for overlaps on its own:
// callers keep it sorted by inserting each extent at the index returned by
// Search and may confirm the result with Verify once all boot stages have
// reported their extents.
//
// A Registry is not safe for concurrent use.
type Registry struct {
	extents [Capacity]Extent
	length  int
}

// Len returns the number of extents in the registry.
func (r *Registry) Len() int {
	return r.length
}

// At returns the extent at index.
func (r *Registry) At(index int) Extent {
	return r.extents[:r.length][index]
}

// Extents returns a copy of the registry contents.
func (r *Registry) Extents() []Extent {
	return append([]Extent(nil), r.extents[:r.length]...)
}

// Add appends an extent at the end of the registry. It returns false without
// modifying the registry if the registry is full.
func (r *Registry) Add(base uintptr, pages uint64, typ Type) bool {
	return r.Insert(r.length, base, pages, typ)
}

// Insert places an extent at index, shifting the extents at positions >=
// index one slot to the right. It returns false without modifying the
// registry if the registry is full or index is past the end.
func (r *Registry) Insert(index int, base uintptr, pages uint64, typ Type) bool {
	if r.length == Capacity || index < 0 || index > r.length {
		return false
	}

	copy(r.extents[index+1:r.length+1], r.extents[index:r.length])
	r.extents[index] = Extent{Base: base, Pages: pages, Type: typ}
	r.length++
	return true
}

// remove deletes the extent at index.
func (r *Registry) remove(index int) {
	copy(r.extents[index:r.length-1], r.extents[index+1:r.length])
	r.length--
	r.extents[r.length] = Extent{}
}

// Search returns the index at which an extent starting at base must be
// inserted to keep the registry sorted. The registry is scanned from the tail
// for the last extent that ends at or below base.
func (r *Registry) Search(base uintptr) int {
	for index := r.length - 1; index >= 0; index-- {
		if r.extents[index].End() <= base {
			return index + 1
		}
	}
	return 0
}

// Find returns the index of the extent containing addr. The registry must be
// sorted.
func (r *Registry) Find(addr uintptr) (int, bool) {
	index := sort.Search(r.length, func(i int) bool {
		return r.extents[i].End() > addr
	})

	if index < r.length && r.extents[index].Contains(addr) {
		return index, true
	}
	return -1, false
}

// Merge coalesces the extent at index with the neighbours that are
// physically adjacent to it and share its type. It returns the index of the
// merged extent.
func (r *Registry) Merge(index int) int {
	for index+1 < r.length && r.mergeable(index, index+1) {
		r.extents[index].Pages += r.extents[index+1].Pages
		r.remove(index + 1)
	}

	for index > 0 && r.mergeable(index-1, index) {
		r.extents[index-1].Pages += r.extents[index].Pages
		r.remove(index)
		index--
	}

	return index
}

func (r *Registry) mergeable(lo, hi int) bool {
	return r.extents[lo].Type == r.extents[hi].Type && r.extents[lo].End() == r.extents[hi].Base
}

// Split re-classifies the pages [base, base+pages*PageSize) as typ. The range
// must lie inside a single extent. Depending on where the range sits the
// extent is re-typed in place, trimmed at the front or back, or split in
// three. Split returns false without modifying the registry if the range is
// not contained in one extent or the registry lacks room for the new pieces.
func (r *Registry) Split(base uintptr, pages uint64, typ Type) bool {
	index, found := r.Find(base)
	if !found || pages == 0 {
		return false
	}

	var (
		ext = r.extents[index]
		end = base + uintptr(pages)<<mm.PageShift
	)

	if end > ext.End() || end <= base {
		return false
	}

	if ext.Type == typ {
		return true
	}

	frontPages := uint64(base-ext.Base) >> mm.PageShift
	backPages := uint64(ext.End()-end) >> mm.PageShift

	switch {
	case frontPages == 0 && backPages == 0:
		r.extents[index].Type = typ
	case frontPages == 0:
		if !r.Insert(index, base, pages, typ) {
			return false
		}
		r.extents[index+1] = Extent{Base: end, Pages: backPages, Type: ext.Type}
	case backPages == 0:
		if !r.Insert(index+1, base, pages, typ) {
			return false
		}
		r.extents[index].Pages = frontPages
	default:
		if r.length+2 > Capacity {
			return false
		}
		r.extents[index].Pages = frontPages
		r.Insert(index+1, base, pages, typ)
		r.Insert(index+2, end, backPages, ext.Type)
	}

	return true
}

// Verify checks that the extents are sorted by base address and do not
// overlap.
func (r *Registry) Verify() *kernel.Error {
	for index := 1; index < r.length; index++ {
		prev, cur := &r.extents[index-1], &r.extents[index]
		switch {
		case cur.Base < prev.Base:
			return ErrUnsorted
		case cur.Base < prev.End():
			return ErrOverlap
		}
	}
	return nil
}

// Pages returns the total number of pages classified as typ.
func (r *Registry) Pages(typ Type) uint64 {
	var total uint64
	for _, ext := range r.extents[:r.length] {
		if ext.Type == typ {
			total += ext.Pages
		}
	}
	return total
}

// Dump writes one line per extent to w.
func (r *Registry) Dump(w io.Writer) {
	for index, ext := range r.extents[:r.length] {
		fmt.Fprintf(w, "%3d %s\n", index, ext)
	}
}
