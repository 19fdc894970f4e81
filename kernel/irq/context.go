package irq

import (
	"io"

	"nucleus/kernel/kfmt"
)

// Context is a snapshot of the CPU state captured by the trap entry path. It
// overlays the trap stack: the general purpose registers pushed by
// trapCommon come first (R15 was pushed last and sits at the lowest
// address), followed by the vector number and error code pushed by the
// entry stub and finally the frame pushed by the CPU.
//
// A Context only lives for the duration of a single trap and must not be
// retained by handlers.
type Context struct {
	R15 uint64
	R14 uint64
	R13 uint64
	R12 uint64
	R11 uint64
	R10 uint64
	R9  uint64
	R8  uint64
	RSI uint64
	RDI uint64
	RBP uint64
	RDX uint64
	RCX uint64
	RBX uint64
	RAX uint64

	// Vector is the number of the vector that fired.
	Vector uint64

	// ErrorCode is supplied by the CPU for some exceptions; for the rest
	// the entry stub stores a zero here.
	ErrorCode uint64

	// The return frame used by IRETQ.
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo outputs the register contents to w.
func (ctx *Context) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", ctx.RAX, ctx.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", ctx.RCX, ctx.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", ctx.RSI, ctx.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", ctx.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", ctx.R8, ctx.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", ctx.R10, ctx.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", ctx.R12, ctx.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", ctx.R14, ctx.R15)
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", ctx.RIP, ctx.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", ctx.RSP, ctx.SS)
	kfmt.Fprintf(w, "RFL = %16x ERR = %16x\n", ctx.RFlags, ctx.ErrorCode)
}
