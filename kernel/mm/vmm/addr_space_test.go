package vmm

import (
	"testing"

	"github.com/TonyChenSmith/aos-sub001/kernel/mm"
)

func TestEarlyReserveRegion(t *testing.T) {
	const top = uintptr(0xffffffffffe00000)
	r := NewEarlyReserver(top-8*mm.PageSize, top)

	specs := []struct {
		size    uintptr
		expAddr uintptr
		expErr  bool
	}{
		// rounded up to one page; guard page below
		{42, top - mm.PageSize, false},
		{2 * mm.PageSize, top - 4*mm.PageSize, false},
		{2*mm.PageSize + 1, 0, true},
		{2 * mm.PageSize, top - 7*mm.PageSize, false},
		{mm.PageSize, 0, true},
	}

	for specIndex, spec := range specs {
		addr, err := r.ReserveRegion(spec.size)
		if spec.expErr {
			if err != errEarlyReserveNoSpace {
				t.Errorf("[spec %d] expected errEarlyReserveNoSpace; got %v", specIndex, err)
			}
			continue
		}

		if err != nil {
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
			continue
		}

		if addr != spec.expAddr {
			t.Errorf("[spec %d] expected reserved address 0x%x; got 0x%x", specIndex, spec.expAddr, addr)
		}
	}
}
