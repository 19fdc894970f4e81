// Package allocator provides the physical page allocators used while the
// kernel bootstraps.
package allocator

import (
	"io"

	"nucleus/kernel"
	"nucleus/kernel/hal/limine"
	"nucleus/kernel/kfmt"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
)

var (
	// earlyAllocator is a boot mem allocator instance used for page
	// allocations before switching to a more advanced allocator.
	earlyAllocator BootMemAllocator

	errBootAllocOutOfMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
	errBootAllocUnaligned   = &kernel.Error{Module: "boot_mem_alloc", Message: "region is not page-aligned"}
)

// BootMemAllocator implements a rudimentary physical memory allocator which is
// used to bootstrap the kernel.
//
// The allocator carves pages off the front of the memory regions reported by
// the bootloader. Regions are visited in the order they were reported and the
// first eligible region (usable or bootloader reclaimable) with at least one
// page left wins. The chosen region's Base and Length are updated in place;
// regions are never merged, reordered or retyped.
//
// Allocated pages cannot be freed. Once the kernel is properly initialized,
// the allocated blocks will be handed over to a more advanced memory allocator
// that does support freeing.
type BootMemAllocator struct {
	regions []*limine.MemmapEntry

	// allocCount tracks the total number of allocated pages.
	allocCount uint64
}

// NewBootMemAllocator returns an allocator that hands out pages from regions.
// The slice and the entries it points to remain owned by the caller.
func NewBootMemAllocator(regions []*limine.MemmapEntry) *BootMemAllocator {
	return &BootMemAllocator{regions: regions}
}

// eligible returns true if pages may be carved out of region.
func eligible(region *limine.MemmapEntry) bool {
	return region.Type == limine.Usable || region.Type == limine.BootloaderReclaimable
}

// Alloc reserves the next available page and returns its physical address.
// The returned error is errBootAllocOutOfMemory when no eligible region has a
// full page left.
func (alloc *BootMemAllocator) Alloc() (uintptr, *kernel.Error) {
	for _, region := range alloc.regions {
		if !eligible(region) || region.Length < uint64(mem.PageSize) {
			continue
		}

		addr := region.Base
		region.Base += uint64(mem.PageSize)
		region.Length -= uint64(mem.PageSize)
		alloc.allocCount++

		return uintptr(addr), nil
	}

	return 0, errBootAllocOutOfMemory
}

// AllocFrame behaves like Alloc but returns the reserved page as a pmm.Frame.
func (alloc *BootMemAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	addr, err := alloc.Alloc()
	if err != nil {
		return pmm.InvalidFrame, err
	}

	return pmm.FrameFromAddress(addr), nil
}

// AllocCount returns the number of pages handed out so far.
func (alloc *BootMemAllocator) AllocCount() uint64 {
	return alloc.allocCount
}

// Validate checks that every eligible region is page-aligned. The bootloader
// guarantees this; a violation means the memory map is corrupt.
func (alloc *BootMemAllocator) Validate() *kernel.Error {
	for _, region := range alloc.regions {
		if eligible(region) && (!mem.Size(region.Base).PageAligned() || !mem.Size(region.Length).PageAligned()) {
			return errBootAllocUnaligned
		}
	}

	return nil
}

// PrintMemoryMap writes the memory regions and the amount of memory that
// remains available for allocation to w.
func (alloc *BootMemAllocator) PrintMemoryMap(w io.Writer) {
	var totalFree mem.Size

	kfmt.Fprintf(w, "[boot_mem_alloc] system memory map:\n")
	for _, region := range alloc.regions {
		kfmt.Fprintf(w, "\t[0x%16x - 0x%16x], size: %10d, type: %s\n", region.Base, region.End(), region.Length, region.Type.String())

		if eligible(region) {
			totalFree += mem.Size(region.Length)
		}
	}
	kfmt.Fprintf(w, "[boot_mem_alloc] available memory: %dKb (%d pages)\n", uint64(totalFree/mem.Kb), totalFree.Pages())
}

// Init sets up the kernel's early allocator on top of the bootloader memory
// map.
func Init(regions []*limine.MemmapEntry) *kernel.Error {
	earlyAllocator = BootMemAllocator{regions: regions}
	return earlyAllocator.Validate()
}

// AllocFrame reserves a page frame using the early allocator.
func AllocFrame() (pmm.Frame, *kernel.Error) {
	return earlyAllocator.AllocFrame()
}

// AllocCount returns the number of pages handed out by the early allocator.
func AllocCount() uint64 {
	return earlyAllocator.AllocCount()
}

// PrintMemoryMap prints the memory map used by the early allocator.
func PrintMemoryMap(w io.Writer) {
	earlyAllocator.PrintMemoryMap(w)
}
