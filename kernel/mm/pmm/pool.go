// Package pmm implements the bootstrap page pool that supplies the frames
// used for building the boot page tables.
package pmm

import (
	"math/bits"

	"github.com/TonyChenSmith/aos-sub001/kernel"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm"
	"github.com/TonyChenSmith/aos-sub001/kernel/mm/physmem"
	"gvisor.dev/gvisor/pkg/log"
)

const (
	// PoolSize is the number of bytes reserved for the page pool.
	PoolSize = 8 * mm.Mb

	// PoolPages is the number of frames managed by the page pool.
	PoolPages = uint64(PoolSize) >> mm.PageShift

	// bitmapWords is the number of 64-bit words needed to track PoolPages.
	bitmapWords = PoolPages / 64

	// wordSpanShift is log2 of the bytes tracked by a single bitmap word.
	wordSpanShift = 6 + mm.PageShift
)

// The bitmap must exactly cover the pool; this fails to compile otherwise.
var _ [PoolSize % (64 * mm.Size(mm.PageSize))]struct{} = [0]struct{}{}

var (
	// panicFn is mocked by tests.
	panicFn = kernel.Panic

	// ErrExhausted is returned by Alloc when every frame in the pool is in use.
	ErrExhausted = &kernel.Error{Module: "pmm", Message: "page pool exhausted"}

	// ErrInvalidSequencing is returned when the pool is switched to virtual
	// addressing more than once.
	ErrInvalidSequencing = &kernel.Error{Module: "pmm", Message: "page pool already uses virtual addressing"}

	errUnalignedPool = &kernel.Error{Module: "pmm", Message: "page pool base must be page-aligned"}
	errDoubleFree    = &kernel.Error{Module: "pmm", Message: "freeing a page that is not allocated"}
)

// PagePool is a fixed-capacity bitmap allocator over PoolPages contiguous
// frames. Bit b of word w tracks frame 64*w+b; a set bit marks the frame as
// allocated.
//
// The pool hands out usable addresses. Before EnterVirtual these are physical
// addresses; afterwards they are addresses inside the pool's virtual mapping.
// Callers that store addresses in page tables convert them with Translator.
//
// A PagePool is not safe for concurrent use.
type PagePool struct {
	// Debug enables checks that are too expensive or too strict for the
	// regular boot path. Currently it detects double frees.
	Debug bool

	mem    physmem.Memory
	base   uintptr
	xlate  Translator
	bitmap [bitmapWords]uint64
}

// Init sets up the pool to manage the frames starting at base. regionPages is
// the number of frames that are actually backed by the free region the pool
// was carved from. If it is smaller than PoolPages, the unbacked frames at the
// top of the pool are marked as allocated so they are never handed out.
func (p *PagePool) Init(mem physmem.Memory, base uintptr, regionPages uint64) *kernel.Error {
	if !mm.IsPageAligned(base) {
		return errUnalignedPool
	}

	p.mem = mem
	p.base = base
	p.xlate = Translator{}
	p.bitmap = [bitmapWords]uint64{}

	if regionPages < PoolPages {
		for frame := regionPages; frame < PoolPages; frame++ {
			p.bitmap[frame>>6] |= 1 << (frame & 63)
		}
		log.Warningf("[pmm] free region only backs %d of %d pool pages", regionPages, PoolPages)
	}

	log.Infof("[pmm] page pool: %d pages at 0x%x", PoolPages, base)
	return nil
}

// Alloc reserves a frame, clears its contents and returns its usable address.
// Frames are handed out from the top of the pool downwards: the bitmap words
// are scanned from the highest index and, within a word, bits are scanned
// from 63 to 0.
func (p *PagePool) Alloc() (uintptr, *kernel.Error) {
	for w := len(p.bitmap) - 1; w >= 0; w-- {
		free := ^p.bitmap[w]
		if free == 0 {
			continue
		}

		b := 63 - bits.LeadingZeros64(free)
		p.bitmap[w] |= 1 << uint(b)

		addr := p.base + uintptr(w)<<wordSpanShift + uintptr(b)<<mm.PageShift
		p.mem.Zero(addr, mm.PageSize)
		return addr, nil
	}

	return 0, ErrExhausted
}

// Free returns the frame at the usable address addr to the pool. The address
// is interpreted relative to the active frame of reference. Addresses outside
// the pool are ignored.
func (p *PagePool) Free(addr uintptr) {
	if !p.Contains(addr) {
		log.Warningf("[pmm] ignoring free of 0x%x: not a pool page", addr)
		return
	}

	index := uint64(addr-p.base) >> mm.PageShift
	mask := uint64(1) << (index & 63)
	if p.Debug && p.bitmap[index>>6]&mask == 0 {
		panicFn(errDoubleFree)
		return
	}

	p.bitmap[index>>6] &^= mask
}

// Contains returns true if the usable address addr lies inside the pool.
func (p *PagePool) Contains(addr uintptr) bool {
	return addr >= p.base && addr-p.base < uintptr(PoolSize)
}

// Base returns the usable address of the first pool frame.
func (p *PagePool) Base() uintptr {
	return p.base
}

// FreePages returns the number of frames that can still be allocated.
func (p *PagePool) FreePages() uint64 {
	var used int
	for _, word := range p.bitmap {
		used += bits.OnesCount64(word)
	}
	return PoolPages - uint64(used)
}

// Memory returns the accessor used to reach pool frames.
func (p *PagePool) Memory() physmem.Memory {
	return p.mem
}

// Translator returns the address translator that tracks the pool's frame of
// reference.
func (p *PagePool) Translator() *Translator {
	return &p.xlate
}

// EnterVirtual switches the pool to virtual addressing. The current pool base
// is recorded as the physical base and virtBase becomes the base used for all
// subsequent allocations and frees. It may only be called once.
func (p *PagePool) EnterVirtual(virtBase uintptr) *kernel.Error {
	if !mm.IsPageAligned(virtBase) {
		return errUnalignedPool
	}

	if !p.xlate.enterVirtual(p.base, virtBase) {
		return ErrInvalidSequencing
	}

	log.Infof("[pmm] page pool rebased: 0x%x -> 0x%x", p.base, virtBase)
	p.base = virtBase
	return nil
}
