package physmem

import (
	"unsafe"

	"github.com/TonyChenSmith/aos-sub001/kernel/mm"
	"github.com/google/btree"
)

// sparseFrame holds the contents of one page frame touched through a Sparse
// accessor.
type sparseFrame struct {
	frame mm.Frame
	data  [mm.PageSize / 8]uint64
}

// Sparse backs an arbitrarily large address space with host memory,
// allocating frames only when they are first written. Reads from frames that
// were never written return zero. It is used to model machines whose memory
// map spans far more memory than the host can afford to reserve.
type Sparse struct {
	limit  uintptr
	frames *btree.BTreeG[*sparseFrame]
}

// NewSparse returns a Sparse accessor covering [0, limit). A zero limit
// covers the entire address space.
func NewSparse(limit uintptr) *Sparse {
	return &Sparse{
		limit: limit,
		frames: btree.NewG[*sparseFrame](8, func(a, b *sparseFrame) bool {
			return a.frame < b.frame
		}),
	}
}

// Frames returns the number of frames that have been materialized.
func (s *Sparse) Frames() int {
	return s.frames.Len()
}

// lookup returns the frame containing addr, allocating it if create is set.
func (s *Sparse) lookup(addr uintptr, create bool) *sparseFrame {
	if s.limit != 0 && addr >= s.limit {
		panic(ErrAccessOutOfRange)
	}

	key := &sparseFrame{frame: mm.FrameFromAddress(addr)}
	if f, found := s.frames.Get(key); found {
		return f
	}

	if !create {
		return nil
	}

	s.frames.ReplaceOrInsert(key)
	return key
}

// Load64 implements Memory.
func (s *Sparse) Load64(addr uintptr) uint64 {
	checkAlign(addr)
	if f := s.lookup(addr, false); f != nil {
		return f.data[(addr&(mm.PageSize-1))>>3]
	}
	return 0
}

// Store64 implements Memory.
func (s *Sparse) Store64(addr uintptr, val uint64) {
	checkAlign(addr)
	s.lookup(addr, true).data[(addr&(mm.PageSize-1))>>3] = val
}

// Zero implements Memory. Frames that were never written are already zero
// and stay unallocated.
func (s *Sparse) Zero(addr uintptr, size uintptr) {
	if size == 0 {
		return
	}
	if s.limit != 0 && (addr >= s.limit || size > s.limit-addr) {
		panic(ErrAccessOutOfRange)
	}

	end := addr + size
	s.frames.AscendRange(
		&sparseFrame{frame: mm.FrameFromAddress(addr)},
		&sparseFrame{frame: mm.FrameFromAddress(end-1) + 1},
		func(f *sparseFrame) bool {
			frameStart := f.frame.Address()
			from, to := frameStart, frameStart+mm.PageSize
			if addr > from {
				from = addr
			}
			if end < to {
				to = end
			}
			bytes := unsafe.Slice((*byte)(unsafe.Pointer(&f.data[0])), mm.PageSize)
			clear(bytes[from-frameStart : to-frameStart])
			return true
		},
	)
}
