// Package trap interprets the Context captured by the irq entry path. Every
// architectural exception is treated as fatal: the dispatcher reports what
// it can decode about the fault, dumps the registers and halts the CPU.
package trap

import (
	"nucleus/kernel/cpu"
	"nucleus/kernel/irq"
	"nucleus/kernel/kfmt"
)

// Outcome tells the dispatcher what to do after a handler has run.
type Outcome uint8

const (
	// Halt reports the trap and stops the CPU.
	Halt Outcome = iota

	// Resume returns to the interrupted code via the trampoline's restore
	// path.
	Resume
)

// Handler processes a trap for a single vector.
type Handler func(*irq.Context) Outcome

// Page fault error code bits.
const (
	pfProtection = 1 << 0
	pfWrite      = 1 << 1
	pfUser       = 1 << 2
	pfReserved   = 1 << 3
	pfFetch      = 1 << 4
)

var (
	// handlers is indexed by the full 8-bit vector number so device
	// interrupts can share the same dispatch path.
	handlers [irq.NumVectors]Handler

	// report is reused across traps so the fatal path never allocates.
	report Report

	dumpWriter kfmt.PrefixWriter
	dumpPrefix = []byte("    ")

	// The following functions are mocked by tests.
	readCR2Fn     = cpu.ReadCR2
	readDR6Fn     = cpu.ReadDR6
	haltFn        = kfmt.HaltSystem
	handleTrapsFn = irq.HandleTraps
)

var (
	pageFaultReasons = [4]string{
		0:                      "read from non-present page",
		pfProtection:           "page protection violation (read)",
		pfWrite:                "write to non-present page",
		pfProtection | pfWrite: "page protection violation (write)",
	}

	pageFaultFlags = [...]struct {
		bit  uint64
		text string
	}{
		{pfUser, "user-mode access"},
		{pfReserved, "page table has reserved bit set"},
		{pfFetch, "instruction fetch"},
	}
)

// Init routes every trap to Dispatch.
func Init() {
	handleTrapsFn(Dispatch)
}

// HandleVector registers h for vector v. A handler returning Resume makes
// the dispatcher return to the interrupted code instead of halting.
func HandleVector(v irq.Vector, h Handler) {
	handlers[v] = h
}

// Dispatch is the irq callback. It runs the handler registered for the
// vector, if any, and halts the system unless the handler asks to resume.
func Dispatch(ctx *irq.Context) {
	if h := handlers[uint8(ctx.Vector)]; h != nil && h(ctx) == Resume {
		return
	}

	fatal(ctx)
}

// fatal reports the trap described by ctx and halts. It only returns when
// haltFn has been replaced by tests.
func fatal(ctx *irq.Context) {
	decode(ctx, &report)

	kfmt.EmergencyLogf(kfmt.LevelError, "unhandled exception: %s (vector %d)", report.Name, uint64(report.Vector))
	for i := 0; i < report.numFields; i++ {
		kfmt.EmergencyLogf(kfmt.LevelError, "%10s = 0x%16x", report.fields[i].Name, report.fields[i].Value)
	}

	if report.Reason != "" {
		kfmt.EmergencyLogf(kfmt.LevelError, "%10s = %s", "reason", report.Reason)
	}
	for i := 0; i < report.numFlags; i++ {
		kfmt.EmergencyLogf(kfmt.LevelError, "%10s + %s", "", report.flags[i])
	}

	kfmt.EmergencyLogf(kfmt.LevelError, "registers:")
	dumpWriter.Sink = kfmt.ActiveSink()
	dumpWriter.Prefix = dumpPrefix
	ctx.DumpTo(&dumpWriter)

	haltFn()
}

// decode fills r with the diagnostics relevant to the vector that fired.
func decode(ctx *irq.Context, r *Report) {
	v := irq.Vector(ctx.Vector)

	r.reset()
	r.Vector = v
	r.Name = v.String()

	switch v {
	case irq.DivideByZero, irq.Overflow, irq.InvalidOpcode, irq.DeviceNotAvailable,
		irq.FloatingPointException, irq.SIMDFloatingPointException, irq.Breakpoint,
		irq.NMI, irq.BoundRangeExceeded, irq.MachineCheck:
		r.add("RIP", ctx.RIP)
	case irq.Debug:
		r.add("RIP", ctx.RIP)
		r.add("DR6", readDR6Fn())
	case irq.DoubleFault, irq.InvalidTSS, irq.SegmentNotPresent, irq.StackSegmentFault,
		irq.AlignmentCheck:
		r.add("error code", ctx.ErrorCode)
	case irq.GPFException:
		r.add("RIP", ctx.RIP)
		// A zero error code means the fault was not segment related.
		if ctx.ErrorCode != 0 {
			r.add("selector", ctx.ErrorCode)
		}
	case irq.PageFaultException:
		r.add("address", readCR2Fn())
		r.add("error code", ctx.ErrorCode)
		r.add("RIP", ctx.RIP)

		r.Reason = pageFaultReasons[ctx.ErrorCode&(pfProtection|pfWrite)]
		for _, flag := range pageFaultFlags {
			if ctx.ErrorCode&flag.bit != 0 {
				r.flags[r.numFlags] = flag.text
				r.numFlags++
			}
		}
	default:
		r.add("vector", ctx.Vector)
		r.add("RIP", ctx.RIP)
	}
}
