//go:build !amd64

package cpu

// Halt stops instruction execution. Only amd64 targets can run the boot
// core natively; on other architectures this blocks forever.
func Halt() {
	select {}
}

// SwitchPDT is a no-op outside amd64.
func SwitchPDT(pdtPhysAddr uintptr) {}

// ActivePDT always reports 0 outside amd64.
func ActivePDT() uintptr { return 0 }

// ReadCR4 always reports 0 outside amd64.
func ReadCR4() uint64 { return 0 }
