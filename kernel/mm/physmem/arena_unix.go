//go:build linux || darwin || freebsd

package physmem

import "golang.org/x/sys/unix"

// allocBacking maps anonymous, zero-filled, page-aligned memory.
func allocBacking(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

func freeBacking(data []byte) {
	unix.Munmap(data)
}
