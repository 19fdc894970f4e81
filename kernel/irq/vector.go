// Package irq contains the low-level trap entry path: one generated entry stub
// per architectural exception, the shared routine that snapshots the CPU
// state into a Context and the single dispatch callback that receives it.
package irq

//go:generate go run nucleus/tools/genvectors -pkg nucleus/kernel/irq

// Vector identifies an interrupt or exception source.
type Vector uint8

// The architectural exception vectors. Vectors 9, 15, 22-27 and 31 are
// reserved by the architecture.
const (
	// DivideByZero occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideByZero = Vector(0)

	// Debug is raised by the debug registers or single-step mode. DR6
	// describes the condition that triggered it.
	Debug = Vector(1)

	// NMI (non-maskable-interrupt) is a hardware interrupt that indicates
	// issues with RAM or unrecoverable hardware problems.
	NMI = Vector(2)

	// Breakpoint is raised by the INT3 instruction.
	Breakpoint = Vector(3)

	// Overflow is raised by INTO when the overflow flag is set.
	Overflow = Vector(4)

	// BoundRangeExceeded occurs when the BOUND instruction is invoked with
	// an index out of range.
	BoundRangeExceeded = Vector(5)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = Vector(6)

	// DeviceNotAvailable occurs when the CPU attempts to execute an
	// FPU/MMX/SSE instruction while no FPU is available or while support
	// for it has been disabled via CR0.
	DeviceNotAvailable = Vector(7)

	// DoubleFault occurs when an exception is raised while the CPU is
	// trying to deliver another one.
	DoubleFault = Vector(8)

	// CoprocessorSegmentOverrun is reserved on x86-64.
	CoprocessorSegmentOverrun = Vector(9)

	// InvalidTSS occurs when the TSS points to an invalid task segment
	// selector.
	InvalidTSS = Vector(10)

	// SegmentNotPresent occurs when loading a segment or gate whose
	// present bit is clear.
	SegmentNotPresent = Vector(11)

	// StackSegmentFault occurs when attempting to push/pop from a
	// non-canonical stack address or when a stack segment check fails.
	StackSegmentFault = Vector(12)

	// GPFException occurs when a general protection fault occurs.
	GPFException = Vector(13)

	// PageFaultException occurs when a page table entry is not present or
	// when a privilege and/or RW protection check fails.
	PageFaultException = Vector(14)

	// FloatingPointException occurs when an unmasked x87 exception is
	// pending and CR0.NE is set.
	FloatingPointException = Vector(16)

	// AlignmentCheck occurs when alignment checks are enabled and an
	// unaligned memory access is performed.
	AlignmentCheck = Vector(17)

	// MachineCheck occurs when the CPU detects internal errors such as
	// memory-, bus- or cache-related errors.
	MachineCheck = Vector(18)

	// SIMDFloatingPointException occurs when an unmasked SSE exception
	// occurs while CR4.OSXMMEXCPT is set.
	SIMDFloatingPointException = Vector(19)

	// VirtualizationException is raised on EPT violations.
	VirtualizationException = Vector(20)

	// ControlProtection is raised by control-flow enforcement checks.
	ControlProtection = Vector(21)

	// HypervisorInjection is raised by a hypervisor to notify the guest.
	HypervisorInjection = Vector(28)

	// VMMCommunication is raised in SEV-ES guests.
	VMMCommunication = Vector(29)

	// SecurityException is raised by SVM security events.
	SecurityException = Vector(30)

	// NumVectors is the number of entries in the interrupt descriptor
	// table.
	NumVectors = 256
)

// ExceptionInfo describes a vector that has an entry stub.
type ExceptionInfo struct {
	Vector Vector

	// HasErrorCode is true if the CPU pushes an error code before
	// transferring control to the gate. Stubs for the remaining vectors
	// push a zero in its place so every Context has the same layout.
	HasErrorCode bool

	Name string
}

// Exceptions lists every vector that gets an entry stub, ordered by vector
// number. The stub generator and the trap dispatcher both consume it.
var Exceptions = [...]ExceptionInfo{
	{DivideByZero, false, "divide error"},
	{Debug, false, "debug exception"},
	{NMI, false, "non-maskable interrupt"},
	{Breakpoint, false, "breakpoint"},
	{Overflow, false, "overflow"},
	{BoundRangeExceeded, false, "bound range exceeded"},
	{InvalidOpcode, false, "invalid opcode"},
	{DeviceNotAvailable, false, "device not available"},
	{DoubleFault, true, "double fault"},
	{InvalidTSS, true, "invalid TSS"},
	{SegmentNotPresent, true, "segment not present"},
	{StackSegmentFault, true, "stack-segment fault"},
	{GPFException, true, "general protection fault"},
	{PageFaultException, true, "page fault"},
	{FloatingPointException, false, "x87 floating-point exception"},
	{AlignmentCheck, true, "alignment check"},
	{MachineCheck, false, "machine check"},
	{SIMDFloatingPointException, false, "SIMD floating-point exception"},
	{VirtualizationException, false, "virtualization exception"},
	{ControlProtection, true, "control protection exception"},
	{22, false, "reserved"},
	{23, false, "reserved"},
	{24, false, "reserved"},
	{25, false, "reserved"},
	{26, false, "reserved"},
	{27, false, "reserved"},
	{HypervisorInjection, false, "hypervisor injection exception"},
	{VMMCommunication, true, "VMM communication exception"},
	{SecurityException, true, "security exception"},
	{31, false, "reserved"},
}

// Lookup returns the ExceptionInfo for v or false if v has no entry stub.
func Lookup(v Vector) (ExceptionInfo, bool) {
	for _, info := range Exceptions {
		if info.Vector == v {
			return info, true
		}
	}
	return ExceptionInfo{}, false
}

// String returns the exception name for v.
func (v Vector) String() string {
	if info, ok := Lookup(v); ok {
		return info.Name
	}
	if v < 32 {
		return "reserved"
	}
	return "device interrupt"
}
