package vmm

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDump(t *testing.T) {
	pdt, _ := newTestPDT(t, testFeatures, 0, Options{})

	if _, err := pdt.Map(0x100000, kernelHalfBase, 4, AttrRW); err != nil {
		t.Fatal(err)
	}
	if _, err := pdt.Map(0x200000, kernelHalfBase+0x200000, 512, AttrRW); err != nil {
		t.Fatal(err)
	}
	// Not physically contiguous with the previous run
	if _, err := pdt.Map(0x800000, kernelHalfBase+0x4000, 1, AttrRW); err != nil {
		t.Fatal(err)
	}

	exp := `PML4 at 0x3ffff000
  PML4[256] -> 0x3fffe000
    PDPT[0] -> 0x3fffd000
      PD[0] -> 0x3fffc000
        0xffff800000000000-0xffff800000004000 -> 0x100000 [PT x4] rw-
        0xffff800000004000-0xffff800000005000 -> 0x800000 [PT x1] rw-
      0xffff800000200000-0xffff800000400000 -> 0x200000 [PD x1] rw-
`

	var buf bytes.Buffer
	pdt.Dump(&buf)

	if diff := cmp.Diff(exp, buf.String()); diff != "" {
		t.Fatalf("unexpected dump output (-want +got):\n%s", diff)
	}
}
