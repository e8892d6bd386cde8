package kernel

import (
	"github.com/TonyChenSmith/aos-sub001/kernel/cpu"
	"gvisor.dev/gvisor/pkg/log"
)

var (
	// cpuHaltFn is mocked by tests and by host tooling that replays the
	// boot sequence outside of ring 0.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &Error{Module: "rt", Message: "unknown cause"}
)

// SetHaltFn replaces the function invoked by Panic once the failure has been
// reported. It returns the previously installed function.
func SetHaltFn(fn func()) func() {
	prev := cpuHaltFn
	cpuHaltFn = fn
	return prev
}

// Panic reports the supplied error (if not nil) and halts the CPU. There is
// no recovery path at this stage of the boot process so on real hardware
// calls to Panic never return.
func Panic(e interface{}) {
	var err *Error

	switch t := e.(type) {
	case *Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	log.Warningf("-----------------------------------")
	if err != nil {
		log.Warningf("[%s] unrecoverable error: %s", err.Module, err.Message)
	}
	log.Warningf("*** boot panic: system halted ***")

	cpuHaltFn()
}
