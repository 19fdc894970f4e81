package irq

import (
	"reflect"
	"testing"
	"unsafe"

	"golang.org/x/arch/x86/x86asm"

	"nucleus/kernel/cpu"
	"nucleus/kernel/internal/asmtest"
)

// pushOrder is the order in which trapCommon saves the general purpose
// registers.
var pushOrder = []x86asm.Reg{
	x86asm.RAX, x86asm.RBX, x86asm.RCX, x86asm.RDX, x86asm.RBP, x86asm.RDI, x86asm.RSI,
	x86asm.R8, x86asm.R9, x86asm.R10, x86asm.R11, x86asm.R12, x86asm.R13, x86asm.R14, x86asm.R15,
}

func TestHandleTraps(t *testing.T) {
	defer func() {
		handler = nil
		cpuHaltFn = cpu.Halt
	}()

	var haltCalled bool
	cpuHaltFn = func() {
		haltCalled = true
	}

	t.Run("no handler installed", func(t *testing.T) {
		HandleTraps(nil)
		dispatch(&Context{Vector: uint64(PageFaultException)})

		if !haltCalled {
			t.Fatal("expected dispatch to halt when no handler is installed")
		}
	})

	t.Run("handler installed", func(t *testing.T) {
		haltCalled = false

		var got *Context
		HandleTraps(func(ctx *Context) {
			got = ctx
		})

		ctx := &Context{Vector: uint64(GPFException)}
		dispatch(ctx)

		if got != ctx {
			t.Fatal("expected handler to receive the dispatched context")
		}

		if haltCalled {
			t.Fatal("expected dispatch not to halt when a handler is installed")
		}
	})
}

func TestEntryAddress(t *testing.T) {
	seen := make(map[uintptr]Vector)

	for v := 0; v < NumVectors; v++ {
		addr := EntryAddress(Vector(v))

		if _, populated := Lookup(Vector(v)); !populated {
			if addr != 0 {
				t.Errorf("[vector %d] expected no entry stub; got 0x%x", v, addr)
			}
			continue
		}

		if addr == 0 {
			t.Errorf("[vector %d] expected an entry stub", v)
			continue
		}

		if other, dup := seen[addr]; dup {
			t.Errorf("[vector %d] entry stub 0x%x is shared with vector %d", v, addr, other)
		}
		seen[addr] = Vector(v)
	}

	if exp, got := len(Exceptions), len(seen); got != exp {
		t.Fatalf("expected %d entry stubs; got %d", exp, got)
	}
}

func TestEntryStubs(t *testing.T) {
	trapCommonEntry := trapCommonAddr()

	for _, info := range Exceptions {
		stub, err := asmtest.Decode(EntryAddress(info.Vector))
		if err != nil {
			t.Errorf("[vector %d] %v", info.Vector, err)
			continue
		}

		var expOps []x86asm.Op
		if !info.HasErrorCode {
			expOps = append(expOps, x86asm.PUSH)
		}
		expOps = append(expOps, x86asm.PUSH, x86asm.JMP)

		if got := stub.Ops(); !reflect.DeepEqual(got, expOps) {
			t.Errorf("[vector %d] unexpected stub code:\n%s", info.Vector, stub)
			continue
		}

		var expImms []x86asm.Imm
		if !info.HasErrorCode {
			expImms = append(expImms, 0)
		}
		expImms = append(expImms, x86asm.Imm(info.Vector))

		for i, expImm := range expImms {
			if got := stub.Insts[i].Args[0]; got != expImm {
				t.Errorf("[vector %d] expected instruction %d to push %d; got %v", info.Vector, i, expImm, got)
			}
		}

		jmp := len(stub.Insts) - 1
		if target, ok := stub.RelTarget(jmp); !ok || target != trapCommonEntry {
			t.Errorf("[vector %d] expected stub to jump to trapCommon at 0x%x; got 0x%x", info.Vector, trapCommonEntry, target)
		}
	}
}

func TestTrapCommon(t *testing.T) {
	r, err := asmtest.Decode(trapCommonAddr())
	if err != nil {
		t.Fatal(err)
	}

	var expOps []x86asm.Op
	expOps = append(expOps, x86asm.CLD)
	for range pushOrder {
		expOps = append(expOps, x86asm.PUSH)
	}
	expOps = append(expOps,
		x86asm.MOV, x86asm.SUB, x86asm.AND, x86asm.FXSAVE64,
		x86asm.PUSH, x86asm.PUSH, x86asm.CALL, x86asm.POP, x86asm.POP,
		x86asm.FXRSTOR64, x86asm.MOV,
	)
	for range pushOrder {
		expOps = append(expOps, x86asm.POP)
	}
	expOps = append(expOps, x86asm.ADD, x86asm.IRETQ)

	if got := r.Ops(); !reflect.DeepEqual(got, expOps) {
		t.Fatalf("unexpected instruction sequence:\n%s", r)
	}

	var (
		ctxCopy   = 1 + len(pushOrder)
		saveArea  = ctxCopy + 1
		fxsave    = ctxCopy + 3
		call      = fxsave + 3
		fxrstor   = call + 3
		spRestore = fxrstor + 1
		firstPop  = spRestore + 1
	)

	// Registers are saved in push order and restored in reverse.
	for i, reg := range pushOrder {
		if got := r.Insts[1+i].Args[0]; got != reg {
			t.Errorf("expected save %d to push %v; got %v", i, reg, got)
		}

		popIndex := firstPop + (len(pushOrder) - 1 - i)
		if got := r.Insts[popIndex].Args[0]; got != reg {
			t.Errorf("expected restore of %v at instruction %d; got %v", reg, popIndex, got)
		}
	}

	// The Context address (the stack pointer after the last save) is
	// copied before the FXSAVE area is carved out below it.
	if mov := r.Insts[ctxCopy]; mov.Args[0] != x86asm.RDI || mov.Args[1] != x86asm.RSP {
		t.Errorf("expected context address to be copied from RSP; got %v", mov)
	}

	if sub := r.Insts[saveArea]; sub.Args[0] != x86asm.RSP || sub.Args[1] != x86asm.Imm(512) {
		t.Errorf("expected SUB RSP, 512 to reserve the FXSAVE area; got %v", sub)
	}

	if and := r.Insts[saveArea+1]; and.Args[0] != x86asm.RSP || and.Args[1] != x86asm.Imm(-16) {
		t.Errorf("expected the FXSAVE area to be 16-byte aligned; got %v", and)
	}

	rspMem := x86asm.Mem{Base: x86asm.RSP}
	if got := r.Insts[fxsave].Args[0]; got != rspMem {
		t.Errorf("expected FXSAVE64 to store at [RSP]; got %v", got)
	}

	if got := r.Insts[fxrstor].Args[0]; got != rspMem {
		t.Errorf("expected FXRSTOR64 to load from [RSP]; got %v", got)
	}

	// Both pushes carry the Context address: the inner one is the stack
	// argument to dispatch, the outer one survives the call.
	for _, idx := range []int{call - 2, call - 1, call + 1, call + 2} {
		if got := r.Insts[idx].Args[0]; got != x86asm.RDI {
			t.Errorf("expected instruction %d to use RDI; got %v", idx, r.Insts[idx])
		}
	}

	if target, ok := r.RelTarget(call); !ok || target != dispatchAddr() {
		t.Errorf("expected call to dispatch at 0x%x; got 0x%x", dispatchAddr(), target)
	}

	// SSE state is restored before the stack pointer moves back to the
	// Context, so the saved area is still intact.
	if mov := r.Insts[spRestore]; mov.Args[0] != x86asm.RSP || mov.Args[1] != x86asm.RDI {
		t.Errorf("expected RSP to be restored from the saved context address; got %v", mov)
	}

	// Vector number and error code are discarded before IRETQ so the
	// stack pointer is back at the CPU trap frame.
	add := r.Insts[len(r.Insts)-2]
	if add.Args[0] != x86asm.RSP || add.Args[1] != x86asm.Imm(16) {
		t.Errorf("expected ADD RSP, 16 before IRETQ; got %v", add)
	}

	if r.Insts[len(r.Insts)-1].DataSize != 64 {
		t.Errorf("expected a 64-bit IRETQ")
	}
}

// trapFrame holds the values the CPU pushes when delivering a trap.
type trapFrame struct {
	rip, cs, rflags, rsp, ss uint64
}

// simulateTrap builds the trap stack that the CPU, the entry stub for info
// and trapCommon produce, by interpreting the decoded push instructions.
// The returned Context overlays that stack.
func simulateTrap(t *testing.T, info ExceptionInfo, frame trapFrame, hwErrorCode uint64, regs map[x86asm.Reg]uint64) *Context {
	stub, err := asmtest.Decode(EntryAddress(info.Vector))
	if err != nil {
		t.Fatal(err)
	}

	common, err := asmtest.Decode(trapCommonAddr())
	if err != nil {
		t.Fatal(err)
	}

	var (
		stack = make([]uint64, unsafe.Sizeof(Context{})/8)
		sp    = len(stack)
	)

	push := func(v uint64) {
		if sp == 0 {
			t.Fatalf("[vector %d] trap pushes more values than a Context holds", info.Vector)
		}
		sp--
		stack[sp] = v
	}

	push(frame.ss)
	push(frame.rsp)
	push(frame.rflags)
	push(frame.cs)
	push(frame.rip)
	if info.HasErrorCode {
		push(hwErrorCode)
	}

	for _, inst := range stub.Insts {
		if inst.Op == x86asm.PUSH {
			push(uint64(inst.Args[0].(x86asm.Imm)))
		}
	}

	// Stop once trapCommon starts setting up the dispatch call.
	for _, inst := range common.Insts {
		if inst.Op == x86asm.MOV {
			break
		}
		if inst.Op == x86asm.PUSH {
			push(regs[inst.Args[0].(x86asm.Reg)])
		}
	}

	if sp != 0 {
		t.Fatalf("[vector %d] trap pushes %d values less than a Context holds", info.Vector, sp)
	}

	return (*Context)(unsafe.Pointer(&stack[0]))
}

func TestSimulatedTrap(t *testing.T) {
	defer func() {
		handler = nil
	}()

	regs := make(map[x86asm.Reg]uint64)
	for i, reg := range pushOrder {
		regs[reg] = 0xcafe0000 + uint64(i)
	}

	frame := trapFrame{
		rip:    0xffffffff80001234,
		cs:     0x08,
		rflags: 0x202,
		rsp:    0xffff800000010000,
		ss:     0x10,
	}

	for _, info := range Exceptions {
		const hwErrorCode = 0x18

		var got *Context
		HandleTraps(func(ctx *Context) {
			got = ctx
		})

		ctx := simulateTrap(t, info, frame, hwErrorCode, regs)
		dispatch(ctx)

		if got != ctx {
			t.Fatalf("[vector %d] expected handler to receive the trap context", info.Vector)
		}

		if got.Vector != uint64(info.Vector) {
			t.Errorf("[vector %d] expected Vector slot to be %d; got %d", info.Vector, info.Vector, got.Vector)
		}

		expErrorCode := uint64(0)
		if info.HasErrorCode {
			expErrorCode = hwErrorCode
		}
		if got.ErrorCode != expErrorCode {
			t.Errorf("[vector %d] expected error code 0x%x; got 0x%x", info.Vector, expErrorCode, got.ErrorCode)
		}

		if got.RIP != frame.rip || got.CS != frame.cs || got.RFlags != frame.rflags || got.RSP != frame.rsp || got.SS != frame.ss {
			t.Errorf("[vector %d] trap frame mismatch: %+v", info.Vector, *got)
		}

		gotRegs := map[x86asm.Reg]uint64{
			x86asm.RAX: got.RAX, x86asm.RBX: got.RBX, x86asm.RCX: got.RCX, x86asm.RDX: got.RDX,
			x86asm.RBP: got.RBP, x86asm.RDI: got.RDI, x86asm.RSI: got.RSI,
			x86asm.R8: got.R8, x86asm.R9: got.R9, x86asm.R10: got.R10, x86asm.R11: got.R11,
			x86asm.R12: got.R12, x86asm.R13: got.R13, x86asm.R14: got.R14, x86asm.R15: got.R15,
		}
		if !reflect.DeepEqual(gotRegs, regs) {
			t.Errorf("[vector %d] register snapshot mismatch: %+v", info.Vector, *got)
		}
	}
}
