package irq

import (
	"bytes"
	"testing"
	"unsafe"
)

func TestContextLayout(t *testing.T) {
	var ctx Context

	if exp, got := uintptr(22*8), unsafe.Sizeof(ctx); got != exp {
		t.Fatalf("expected Context to be %d bytes; got %d", exp, got)
	}

	specs := []struct {
		field  string
		offset uintptr
	}{
		{"R15", unsafe.Offsetof(ctx.R15)},
		{"R14", unsafe.Offsetof(ctx.R14)},
		{"R13", unsafe.Offsetof(ctx.R13)},
		{"R12", unsafe.Offsetof(ctx.R12)},
		{"R11", unsafe.Offsetof(ctx.R11)},
		{"R10", unsafe.Offsetof(ctx.R10)},
		{"R9", unsafe.Offsetof(ctx.R9)},
		{"R8", unsafe.Offsetof(ctx.R8)},
		{"RSI", unsafe.Offsetof(ctx.RSI)},
		{"RDI", unsafe.Offsetof(ctx.RDI)},
		{"RBP", unsafe.Offsetof(ctx.RBP)},
		{"RDX", unsafe.Offsetof(ctx.RDX)},
		{"RCX", unsafe.Offsetof(ctx.RCX)},
		{"RBX", unsafe.Offsetof(ctx.RBX)},
		{"RAX", unsafe.Offsetof(ctx.RAX)},
		{"Vector", unsafe.Offsetof(ctx.Vector)},
		{"ErrorCode", unsafe.Offsetof(ctx.ErrorCode)},
		{"RIP", unsafe.Offsetof(ctx.RIP)},
		{"CS", unsafe.Offsetof(ctx.CS)},
		{"RFlags", unsafe.Offsetof(ctx.RFlags)},
		{"RSP", unsafe.Offsetof(ctx.RSP)},
		{"SS", unsafe.Offsetof(ctx.SS)},
	}

	for slot, spec := range specs {
		if exp := uintptr(slot * 8); spec.offset != exp {
			t.Errorf("expected field %s at offset %d; got %d", spec.field, exp, spec.offset)
		}
	}
}

func TestContextDumpTo(t *testing.T) {
	ctx := Context{
		RAX: 1, RBX: 2, RCX: 3, RDX: 4,
		RSI: 5, RDI: 6, RBP: 7,
		R8: 8, R9: 9, R10: 10, R11: 11, R12: 12, R13: 13, R14: 14, R15: 15,
		Vector:    14,
		ErrorCode: 2,
		RIP:       0xffffffff80001234,
		CS:        0x08,
		RFlags:    0x202,
		RSP:       0xffff800000010000,
		SS:        0x10,
	}

	exp := "RAX = 0000000000000001 RBX = 0000000000000002\n" +
		"RCX = 0000000000000003 RDX = 0000000000000004\n" +
		"RSI = 0000000000000005 RDI = 0000000000000006\n" +
		"RBP = 0000000000000007\n" +
		"R8  = 0000000000000008 R9  = 0000000000000009\n" +
		"R10 = 000000000000000a R11 = 000000000000000b\n" +
		"R12 = 000000000000000c R13 = 000000000000000d\n" +
		"R14 = 000000000000000e R15 = 000000000000000f\n" +
		"\n" +
		"RIP = ffffffff80001234 CS  = 0000000000000008\n" +
		"RSP = ffff800000010000 SS  = 0000000000000010\n" +
		"RFL = 0000000000000202 ERR = 0000000000000002\n"

	var buf bytes.Buffer
	ctx.DumpTo(&buf)

	if got := buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}
