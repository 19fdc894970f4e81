package kfmt

import (
	"nucleus/kernel"
	"nucleus/kernel/cpu"
)

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic outputs the supplied error (if not nil) to the console and halts the
// CPU. Calls to Panic never return. Panic also works as a redirection target
// for calls to panic() (resolved via runtime.gopanic)
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		panicString(t)
		return
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	locked := sinkLock.TryToAcquire()
	Fprintf(outputSink, "\n-----------------------------------\n")
	if err != nil {
		Fprintf(outputSink, "[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	if locked {
		sinkLock.Release()
	}

	HaltSystem()
}

// HaltSystem prints the "system halted" trailer and stops the CPU. It never
// blocks on the sink lock because it may run while the code that triggered
// the fatal condition holds it.
func HaltSystem() {
	locked := sinkLock.TryToAcquire()
	Fprintf(outputSink, "*** kernel panic: system halted ***")
	Fprintf(outputSink, "\n-----------------------------------\n")
	if locked {
		sinkLock.Release()
	}

	cpuHaltFn()
}

// panicString serves as a redirect target for runtime.throw
//
//go:redirect-from runtime.throw
func panicString(msg string) {
	errRuntimePanic.Message = msg
	Panic(errRuntimePanic)
}
