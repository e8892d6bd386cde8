package physmem

import "unsafe"

// Direct accesses memory by dereferencing addresses. It is the accessor used
// when the boot core runs on bare metal, where the firmware identity-maps
// physical memory before the switch and the new page tables map the pool
// afterwards.
type Direct struct{}

// Load64 implements Memory.
func (Direct) Load64(addr uintptr) uint64 {
	checkAlign(addr)
	return *(*uint64)(unsafe.Pointer(addr))
}

// Store64 implements Memory.
func (Direct) Store64(addr uintptr, val uint64) {
	checkAlign(addr)
	*(*uint64)(unsafe.Pointer(addr)) = val
}

// Zero implements Memory. Instead of a byte loop it performs log2(size) copy
// calls over a slice overlaid on top of the target region.
func (Direct) Zero(addr uintptr, size uintptr) {
	if size == 0 {
		return
	}

	target := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	target[0] = 0
	for index := uintptr(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}
}
