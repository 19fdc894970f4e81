// Package cpu exposes the privileged x86-64 instructions used by the kernel
// core. All functions without a body are implemented in cpu_amd64.s.
package cpu

var (
	cpuidFn = ID
)

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt disables interrupts and stops instruction execution. Halt never
// returns; if the CPU is woken up by an NMI it goes straight back to sleep.
func Halt()

// ReadCR2 returns the value stored in the CR2 register. After a page fault
// CR2 holds the linear address whose access triggered the fault.
func ReadCR2() uint64

// ReadDR6 returns the value of the DR6 debug status register.
func ReadDR6() uint64

// ID returns information about the CPU and its features. It
// is implemented as a CPUID instruction with EAX=leaf and
// returns the values in EAX, EBX, ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8
