// Package limine describes the subset of the Limine boot protocol consumed by
// the kernel: the memory map request the bootloader answers before jumping to
// the kernel entry point.
package limine

import "unsafe"

// MemoryType describes the contents of a memory map entry.
type MemoryType uint64

// The memory map entry types defined by the boot protocol. Only Usable and
// BootloaderReclaimable entries are guaranteed to be page-aligned.
const (
	Usable MemoryType = iota
	Reserved
	ACPIReclaimable
	ACPINVS
	BadMemory
	BootloaderReclaimable
	KernelAndModules
	Framebuffer
)

var memoryTypeNames = [...]string{
	Usable:                "usable",
	Reserved:              "reserved",
	ACPIReclaimable:       "ACPI (reclaimable)",
	ACPINVS:               "ACPI (non-volatile)",
	BadMemory:             "bad memory",
	BootloaderReclaimable: "bootloader (reclaimable)",
	KernelAndModules:      "kernel and modules",
	Framebuffer:           "framebuffer",
}

// String implements fmt.Stringer for MemoryType.
func (t MemoryType) String() string {
	if t >= MemoryType(len(memoryTypeNames)) {
		return "unknown"
	}
	return memoryTypeNames[t]
}

// MemmapEntry describes a single physical memory region.
type MemmapEntry struct {
	Base   uint64
	Length uint64
	Type   MemoryType
}

// End returns the first address past the region.
func (e *MemmapEntry) End() uint64 {
	return e.Base + e.Length
}

// MemmapResponse is filled in by the bootloader. Its entry list is an array
// of EntryCount pointers to MemmapEntry records that live in bootloader
// reclaimable memory.
type MemmapResponse struct {
	Revision   uint64
	EntryCount uint64
	EntryList  **MemmapEntry
}

// Entries returns the memory map as a slice that aliases the bootloader
// provided array. Mutations made through the returned pointers are visible
// to every other holder of the response.
func (r *MemmapResponse) Entries() []*MemmapEntry {
	if r == nil || r.EntryCount == 0 || r.EntryList == nil {
		return nil
	}
	return unsafe.Slice(r.EntryList, r.EntryCount)
}

// NewMemmapResponse builds a response backed by entries.
func NewMemmapResponse(entries []*MemmapEntry) *MemmapResponse {
	resp := &MemmapResponse{EntryCount: uint64(len(entries))}
	if len(entries) != 0 {
		resp.EntryList = &entries[0]
	}
	return resp
}

// MemmapRequestID is the magic identifier the bootloader scans the kernel
// image for.
var MemmapRequestID = [4]uint64{0xc7b1dd30df4c8b88, 0x0a82e883a194f07b, 0x67cf3d9d378a806f, 0xe304acdfc50c3c62}

// MemmapRequest asks the bootloader for the physical memory map.
type MemmapRequest struct {
	ID       [4]uint64
	Revision uint64
	Response *MemmapResponse
}

// MemmapReq is the request instance embedded in the kernel image. The
// bootloader populates Response before transferring control to the kernel.
var MemmapReq = MemmapRequest{ID: MemmapRequestID}

// Memmap returns the memory map reported by the bootloader or nil if the
// request was not answered.
func Memmap() []*MemmapEntry {
	return MemmapReq.Response.Entries()
}
