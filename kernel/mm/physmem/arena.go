package physmem

import (
	"unsafe"

	"github.com/TonyChenSmith/aos-sub001/kernel"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm"
)

// Arena backs a contiguous address window [Base, Base+Size) with host memory.
// Arenas are created by NewArena and must be released with Close.
type Arena struct {
	base uintptr
	data []byte
}

// NewArena returns an Arena covering size bytes (rounded up to a page
// multiple) starting at base. The backing memory is zero-filled.
func NewArena(base uintptr, size mm.Size) (*Arena, *kernel.Error) {
	data, err := allocBacking(int(mm.PageAlignUp(uintptr(size))))
	if err != nil {
		return nil, &kernel.Error{Module: "physmem", Message: "unable to allocate arena: " + err.Error()}
	}

	return &Arena{base: base, data: data}, nil
}

// Base returns the first address covered by the arena.
func (a *Arena) Base() uintptr { return a.base }

// Size returns the number of bytes covered by the arena.
func (a *Arena) Size() uintptr { return uintptr(len(a.data)) }

// Contains returns true if [addr, addr+size) lies inside the arena.
func (a *Arena) Contains(addr, size uintptr) bool {
	return addr >= a.base && size <= uintptr(len(a.data)) && addr-a.base <= uintptr(len(a.data))-size
}

// Close releases the backing memory. The arena must not be used afterwards.
func (a *Arena) Close() {
	if a.data != nil {
		freeBacking(a.data)
		a.data = nil
	}
}

func (a *Arena) word(addr uintptr) *uint64 {
	checkAlign(addr)
	if !a.Contains(addr, 8) {
		panic(ErrAccessOutOfRange)
	}
	return (*uint64)(unsafe.Pointer(&a.data[addr-a.base]))
}

// Load64 implements Memory.
func (a *Arena) Load64(addr uintptr) uint64 {
	return *a.word(addr)
}

// Store64 implements Memory.
func (a *Arena) Store64(addr uintptr, val uint64) {
	*a.word(addr) = val
}

// Zero implements Memory.
func (a *Arena) Zero(addr uintptr, size uintptr) {
	if !a.Contains(addr, size) {
		panic(ErrAccessOutOfRange)
	}
	clear(a.data[addr-a.base : addr-a.base+size])
}
