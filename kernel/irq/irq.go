package irq

import "nucleus/kernel/cpu"

// Handler processes a trap. The Context pointer is only valid until the
// handler returns.
type Handler func(*Context)

var (
	handler Handler

	// cpuHaltFn is mocked by tests.
	cpuHaltFn = cpu.Halt
)

// HandleTraps installs fn as the callback invoked for every vector that has
// an entry stub. It must be called before interrupts are enabled.
func HandleTraps(fn Handler) {
	handler = fn
}

// EntryAddress returns the address of the entry stub for v or 0 if v has no
// stub.
func EntryAddress(v Vector) uintptr {
	if int(v) >= numStubSlots {
		return 0
	}
	return stubTable()[v]
}

// dispatch is called by trapCommon with a pointer to the Context saved on
// the trap stack.
func dispatch(ctx *Context) {
	if handler == nil {
		cpuHaltFn()
		return
	}
	handler(ctx)
}

// trapCommon saves the general purpose registers, calls dispatch and
// restores the interrupted state via IRETQ. It is entered by a JMP from the
// entry stubs, never called.
func trapCommon()

// stubTable returns the table of entry stub addresses indexed by vector.
// Slots for vectors without a stub are zero.
func stubTable() *[numStubSlots]uintptr

// trapCommonAddr returns the entry address of trapCommon.
func trapCommonAddr() uintptr

// dispatchAddr returns the address trapCommon calls to reach dispatch.
func dispatchAddr() uintptr
