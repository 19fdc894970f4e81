// Package gdt builds and loads the global descriptor table describing the
// flat segmentation model required by long mode.
//
// The table holds exactly five descriptors: the mandatory null descriptor
// followed by kernel code, kernel data, user code and user data segments.
// Base and limit are ignored by the CPU in 64-bit mode so only the access
// and flag bytes of each descriptor carry information.
package gdt

import (
	"unsafe"

	"nucleus/kernel"
	"nucleus/kernel/cpu"
)

// Table slot indices.
const (
	nullIndex = iota
	kernelCodeIndex
	kernelDataIndex
	userCodeIndex
	userDataIndex

	numEntries
)

// Segment selectors for the descriptors installed by Init. The low two bits
// of a selector hold the requested privilege level.
const (
	KernelCodeSelector uint16 = kernelCodeIndex << 3
	KernelDataSelector uint16 = kernelDataIndex << 3
	UserCodeSelector   uint16 = userCodeIndex<<3 | 3
	UserDataSelector   uint16 = userDataIndex<<3 | 3
)

// Access byte bits.
const (
	accessRW         = 1 << 1
	accessDC         = 1 << 2
	accessExecutable = 1 << 3
	accessNonSystem  = 1 << 4
	accessDPLShift   = 5
	accessPresent    = 1 << 7
)

// flagByte selects 4 KiB granularity (bit 3) and a 64-bit code segment
// (bit 1). The flags occupy the upper nibble of the byte; the lower nibble
// holds limit bits 16-19.
const flagByte = (1<<3 | 1<<1) << 4

// Entry is a segment descriptor as laid out in memory.
type Entry struct {
	LimitLow uint16
	BaseLow  uint16
	BaseMid  uint8
	Access   uint8
	Flags    uint8
	BaseHigh uint8
}

var (
	table [numEntries]Entry

	// frozen is set once the table has been handed to the CPU.
	frozen bool

	// loadGDTFn is mocked by tests.
	loadGDTFn = loadGDT

	errTableFrozen = &kernel.Error{Module: "gdt", Message: "segment table already loaded"}
)

// AccessByte packs the access byte of a present, non-system descriptor with
// privilege level dpl.
func AccessByte(dpl uint8, executable, dc, rw bool) uint8 {
	access := uint8(accessPresent | accessNonSystem)
	access |= (dpl & 3) << accessDPLShift
	if executable {
		access |= accessExecutable
	}
	if dc {
		access |= accessDC
	}
	if rw {
		access |= accessRW
	}
	return access
}

func codeEntry(dpl uint8) Entry {
	return Entry{Access: AccessByte(dpl, true, false, true), Flags: flagByte}
}

func dataEntry(dpl uint8) Entry {
	return Entry{Access: AccessByte(dpl, false, false, true), Flags: flagByte}
}

// Init populates the table, loads it and switches CS, DS, ES and SS to the
// kernel selectors. Init may only be called once; afterwards the table is
// frozen and the only writer is the CPU updating descriptor accessed bits.
func Init() {
	if frozen {
		panic(errTableFrozen)
	}

	table[nullIndex] = Entry{}
	table[kernelCodeIndex] = codeEntry(0)
	table[kernelDataIndex] = dataEntry(0)
	table[userCodeIndex] = codeEntry(3)
	table[userDataIndex] = dataEntry(3)

	ptr := cpu.NewTablePointer(uintptr(unsafe.Pointer(&table[0])), unsafe.Sizeof(table))
	loadGDTFn(&ptr, KernelCodeSelector, KernelDataSelector)
	frozen = true
}

// Entries returns a copy of the descriptor table.
func Entries() [numEntries]Entry {
	return table
}

// loadGDT executes LGDT with the supplied table pointer, reloads DS, ES and
// SS with data and finally reloads CS with code through a far return whose
// target is the instruction following it.
func loadGDT(ptr *cpu.TablePointer, code, data uint16)

// loadGDTAddr returns the entry address of loadGDT.
func loadGDTAddr() uintptr
