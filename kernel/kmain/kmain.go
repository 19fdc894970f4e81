// Package kmain contains the kernel entrypoint that brings up the boot
// processor.
package kmain

import (
	"nucleus/kernel"
	"nucleus/kernel/cpu"
	"nucleus/kernel/gate"
	"nucleus/kernel/gdt"
	"nucleus/kernel/hal"
	"nucleus/kernel/hal/limine"
	"nucleus/kernel/kfmt"
	"nucleus/kernel/mem/pmm/allocator"
	"nucleus/kernel/trap"
)

var (
	errUnsupportedCPU = &kernel.Error{Module: "kmain", Message: "processor lacks SSE2 support"}

	// The following functions are mocked by tests.
	disableInterruptsFn = cpu.DisableInterrupts
	detectHardwareFn    = hal.DetectHardware
	activeDriversFn     = hal.ActiveDrivers
	gdtInitFn           = gdt.Init
	trapInitFn          = trap.Init
	gateInitFn          = gate.Init
	gateLoadFn          = gate.Load
	featuresFn          = cpu.Features
	isIntelFn           = cpu.IsIntel
	memmapFn            = limine.Memmap
	allocInitFn         = allocator.Init
	allocFrameFn        = allocator.AllocFrame
	allocCountFn        = allocator.AllocCount
	cpuHaltFn           = cpu.Halt
)

// Kmain is invoked by the boot stub once the bootloader has handed control to
// the kernel in long mode. It sets up segmentation and trap handling, brings
// up the early page allocator from the bootloader memory map and then halts.
//
// Kmain is not expected to return.
//
//go:noinline
func Kmain() {
	// Nothing may interrupt the core until the gate table is loaded.
	disableInterruptsFn()

	detectHardwareFn()
	kfmt.Infof("nucleus: starting processor bring-up")
	kfmt.Infof("[kmain] %d device driver(s) active", len(activeDriversFn()))

	gdtInitFn()
	kfmt.Infof("[kmain] segment table loaded")

	trapInitFn()
	gateInitFn()
	gateLoadFn()
	kfmt.Infof("[kmain] gate table loaded")

	features := featuresFn()
	kfmt.Infof("[kmain] cpu: intel=%t", isIntelFn())
	kfmt.Infof("[kmain] cpu features: sse2=%t sse3=%t avx=%t avx2=%t osxsave=%t rdrand=%t",
		features.SSE2, features.SSE3, features.AVX, features.AVX2, features.OSXSAVE, features.RDRAND)
	if !features.Usable() {
		panic(errUnsupportedCPU)
	}

	if err := allocInitFn(memmapFn()); err != nil {
		panic(err)
	}
	allocator.PrintMemoryMap(kfmt.ActiveSink())

	if frame, err := allocFrameFn(); err != nil {
		kfmt.Warningf("[kmain] early allocator self-test failed: %s", err.Message)
	} else {
		kfmt.Infof("[kmain] early allocator self-test: frame %d at 0x%x", uint64(frame), frame.Address())
	}
	kfmt.Infof("[kmain] early allocator handed out %d page(s)", allocCountFn())

	kfmt.Infof("nucleus: processor core online; halting")
	cpuHaltFn()
}
