package pmm

import "fmt"

// Context identifies the frame of reference used to reach page pool frames.
type Context uint8

const (
	// Physical is the initial context: usable addresses are physical
	// addresses.
	Physical Context = iota

	// Virtual is the context after the switch to the newly built page
	// tables: the pool is reached through its virtual mapping.
	Virtual
)

// String implements fmt.Stringer.
func (c Context) String() string {
	switch c {
	case Physical:
		return "physical"
	case Virtual:
		return "virtual"
	default:
		return fmt.Sprintf("context(%d)", uint8(c))
	}
}

// Translator converts between physical addresses and addresses that are
// usable by the code currently running. Its behavior changes exactly once,
// when the owning PagePool switches to the Virtual context.
type Translator struct {
	context  Context
	physBase uintptr
	virtBase uintptr
}

// Context returns the active frame of reference.
func (t *Translator) Context() Context {
	return t.context
}

// ToUsable converts a physical address into an address that can be
// dereferenced in the active context.
func (t *Translator) ToUsable(paddr uintptr) uintptr {
	if t.context == Physical {
		return paddr
	}
	return paddr - t.physBase + t.virtBase
}

// ToPhysical converts an address that is usable in the active context back
// into a physical address.
func (t *Translator) ToPhysical(addr uintptr) uintptr {
	if t.context == Physical {
		return addr
	}
	return addr - t.virtBase + t.physBase
}

// enterVirtual rebases the translator so that physBase is reached through
// virtBase. It returns false if the translator already left the Physical
// context.
func (t *Translator) enterVirtual(physBase, virtBase uintptr) bool {
	if t.context != Physical {
		return false
	}

	t.physBase, t.virtBase = physBase, virtBase
	t.context = Virtual
	return true
}
