package cpu

// Halt disables interrupts and stops instruction execution.
func Halt()

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR4 returns the contents of the CR4 control register.
func ReadCR4() uint64
