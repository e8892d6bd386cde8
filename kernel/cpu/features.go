package cpu

import "fmt"

// CR4LA57 is the CR4 bit that enables 57-bit linear addresses (5-level
// paging).
const CR4LA57 = uint64(1 << 12)

// Features describes the paging capabilities reported by the CPU.
type Features struct {
	// LA57 is set if the CPU supports 5-level paging.
	LA57 bool

	// Page1GB is set if the CPU supports 1GiB pages at the PDPT level.
	Page1GB bool

	// GlobalPages is set if the CPU supports the global page bit.
	GlobalPages bool

	// NX is set if the CPU supports the execute-disable bit.
	NX bool
}

// FiveLevel reports whether the page table hierarchy must be 5 levels deep
// given the supplied CR4 contents. The decision whether to enable LA57 is made
// elsewhere; this only combines the two facts.
func (f Features) FiveLevel(cr4 uint64) bool {
	return f.LA57 && cr4&CR4LA57 != 0
}

// String implements fmt.Stringer.
func (f Features) String() string {
	return fmt.Sprintf("la57=%t page1gb=%t pge=%t nx=%t", f.LA57, f.Page1GB, f.GlobalPages, f.NX)
}
