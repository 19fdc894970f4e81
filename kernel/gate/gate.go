// Package gate builds and loads the interrupt descriptor table. Each populated
// gate points at the irq entry stub of its vector; the remaining gates are
// left not present so that firing one raises a general protection fault.
package gate

import (
	"unsafe"

	"nucleus/kernel"
	"nucleus/kernel/cpu"
	"nucleus/kernel/gdt"
	"nucleus/kernel/irq"
)

// Kind selects how the CPU treats the interrupt flag when entering a gate.
type Kind uint8

const (
	// InterruptGate clears IF on entry.
	InterruptGate Kind = 0xe

	// TrapGate leaves IF unchanged.
	TrapGate Kind = 0xf
)

// Attribute word bits.
const (
	attrISTMask   = 0x7
	attrKindShift = 8
	attrDPLShift  = 13
	attrPresent   = 1 << 15
)

// Gate is a 64-bit IDT entry as laid out in memory. The handler address is
// split across OffsetLow, OffsetMid and OffsetHigh.
type Gate struct {
	OffsetLow  uint16
	Selector   uint16
	Attributes uint16
	OffsetMid  uint16
	OffsetHigh uint32
	Reserved   uint32
}

var (
	table [irq.NumVectors]Gate

	// frozen is set once the table has been handed to the CPU.
	frozen bool

	// loadIDTFn is mocked by tests.
	loadIDTFn = loadIDT

	errTableFrozen = &kernel.Error{Module: "gate", Message: "gate table already loaded"}
)

// Attributes packs the attribute word of a present gate.
func Attributes(dpl uint8, kind Kind, ist uint8) uint16 {
	return attrPresent |
		uint16(dpl&3)<<attrDPLShift |
		uint16(kind&0xf)<<attrKindShift |
		uint16(ist&attrISTMask)
}

// SplitAddress splits a handler address into the three offset fields of a
// gate.
func SplitAddress(addr uint64) (low, mid uint16, high uint32) {
	return uint16(addr), uint16(addr >> 16), uint32(addr >> 32)
}

// JoinAddress reassembles a handler address split by SplitAddress.
func JoinAddress(low, mid uint16, high uint32) uint64 {
	return uint64(high)<<32 | uint64(mid)<<16 | uint64(low)
}

// NewGate returns a gate that transfers control to handler using the code
// segment selected by selector.
func NewGate(handler uintptr, selector uint16, attributes uint16) Gate {
	low, mid, high := SplitAddress(uint64(handler))
	return Gate{
		OffsetLow:  low,
		Selector:   selector,
		Attributes: attributes,
		OffsetMid:  mid,
		OffsetHigh: high,
	}
}

// Handler returns the address of the code invoked by the gate.
func (g *Gate) Handler() uintptr {
	return uintptr(JoinAddress(g.OffsetLow, g.OffsetMid, g.OffsetHigh))
}

// Present returns true if the gate's present bit is set.
func (g *Gate) Present() bool {
	return g.Attributes&attrPresent != 0
}

// Init points the gate of every architectural exception that has an entry
// stub at that stub. Gates are DPL 0 interrupt gates using the kernel code
// segment and no IST stack.
func Init() {
	if frozen {
		panic(errTableFrozen)
	}

	attrs := Attributes(0, InterruptGate, 0)
	for _, info := range irq.Exceptions {
		table[info.Vector] = NewGate(irq.EntryAddress(info.Vector), gdt.KernelCodeSelector, attrs)
	}
}

// Load installs the table with LIDT. Once loaded the table is frozen.
func Load() {
	ptr := cpu.NewTablePointer(uintptr(unsafe.Pointer(&table[0])), unsafe.Sizeof(table))
	loadIDTFn(&ptr)
	frozen = true
}

// Entry returns a copy of the gate for vector v.
func Entry(v irq.Vector) Gate {
	return table[v]
}

// loadIDT executes LIDT with the supplied table pointer.
func loadIDT(ptr *cpu.TablePointer)

// loadIDTAddr returns the entry address of loadIDT.
func loadIDTAddr() uintptr
