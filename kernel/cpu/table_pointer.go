package cpu

import "encoding/binary"

// TablePointer is the packed 10-byte operand of the LGDT and LIDT
// instructions: a 16-bit limit (table size in bytes minus one) followed by
// the 64-bit linear base address of the table.
type TablePointer [10]byte

// NewTablePointer returns the pointer operand for a table of size bytes
// located at base.
func NewTablePointer(base uintptr, size uintptr) TablePointer {
	var p TablePointer
	binary.LittleEndian.PutUint16(p[0:], uint16(size-1))
	binary.LittleEndian.PutUint64(p[2:], uint64(base))
	return p
}

// Limit returns the table limit.
func (p *TablePointer) Limit() uint16 {
	return binary.LittleEndian.Uint16(p[0:])
}

// Base returns the linear address of the table.
func (p *TablePointer) Base() uint64 {
	return binary.LittleEndian.Uint64(p[2:])
}
