// Package asmtest disassembles the kernel's assembly routines so that tests
// can verify privileged instruction sequences which cannot be executed in a
// hosted test binary.
package asmtest

import (
	"bytes"
	"fmt"
	"unsafe"

	"golang.org/x/arch/x86/x86asm"
)

const (
	// maxInstLen is the longest legal x86 instruction encoding.
	maxInstLen = 15

	// maxRoutineInsts bounds decoding when a terminator is never found.
	maxRoutineInsts = 256
)

// Routine is a decoded instruction sequence that starts at Addr.
type Routine struct {
	Addr  uintptr
	Insts []x86asm.Inst

	offsets []uintptr
}

// Decode disassembles the code located at addr up to and including the first
// RET, IRETQ or unconditional JMP instruction.
func Decode(addr uintptr) (*Routine, error) {
	r := &Routine{Addr: addr}

	for pc := addr; len(r.Insts) < maxRoutineInsts; {
		code := unsafe.Slice((*byte)(unsafe.Pointer(pc)), maxInstLen)
		inst, err := x86asm.Decode(code, 64)
		if err != nil {
			return nil, fmt.Errorf("decode error at +0x%x: %w", pc-addr, err)
		}

		r.Insts = append(r.Insts, inst)
		r.offsets = append(r.offsets, pc-addr)
		pc += uintptr(inst.Len)

		switch inst.Op {
		case x86asm.RET, x86asm.IRETQ, x86asm.JMP:
			return r, nil
		}
	}

	return nil, fmt.Errorf("no terminating instruction within %d instructions", maxRoutineInsts)
}

// Ops returns the opcode of each decoded instruction.
func (r *Routine) Ops() []x86asm.Op {
	ops := make([]x86asm.Op, len(r.Insts))
	for i, inst := range r.Insts {
		ops[i] = inst.Op
	}
	return ops
}

// PC returns the address of the i-th instruction.
func (r *Routine) PC(i int) uintptr {
	return r.Addr + r.offsets[i]
}

// NextPC returns the address of the instruction following the i-th one.
func (r *Routine) NextPC(i int) uintptr {
	return r.PC(i) + uintptr(r.Insts[i].Len)
}

// RelTarget returns the absolute address referenced by the i-th instruction's
// PC-relative operand: a Rel branch target or a RIP-based memory operand.
func (r *Routine) RelTarget(i int) (uintptr, bool) {
	for _, arg := range r.Insts[i].Args {
		switch a := arg.(type) {
		case x86asm.Rel:
			return uintptr(int64(r.NextPC(i)) + int64(a)), true
		case x86asm.Mem:
			if a.Base == x86asm.RIP {
				return uintptr(int64(r.NextPC(i)) + a.Disp), true
			}
		}
	}
	return 0, false
}

// Index returns the index of the first instruction with the given opcode at
// or after from, or -1.
func (r *Routine) Index(from int, op x86asm.Op) int {
	for i := from; i < len(r.Insts); i++ {
		if r.Insts[i].Op == op {
			return i
		}
	}
	return -1
}

// String returns a listing of the routine in Go assembler syntax.
func (r *Routine) String() string {
	var buf bytes.Buffer
	for i, inst := range r.Insts {
		fmt.Fprintf(&buf, "+0x%02x\t%s\n", r.offsets[i], x86asm.GoSyntax(inst, uint64(r.PC(i)), nil))
	}
	return buf.String()
}
