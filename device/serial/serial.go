// Package serial implements a polled driver for a 16550-compatible UART.
// COM1 serves as the kernel's diagnostic output device.
package serial

import (
	"io"

	"nucleus/device"
	"nucleus/kernel"
	"nucleus/kernel/cpu"
	"nucleus/kernel/kfmt"
)

const (
	// COM1 is the I/O base port of the first serial port.
	COM1 uint16 = 0x3f8

	// DefaultDivisor programs the UART for 38400 baud.
	DefaultDivisor uint16 = 3

	// Register offsets from the base port.
	regData        = 0
	regIntEnable   = 1
	regFIFOControl = 2
	regLineControl = 3
	regModemCtrl   = 4
	regLineStatus  = 5
	regScratch     = 7

	lineControlDLAB = 0x80
	lineControl8N1  = 0x03
	fifoEnable      = 0xc7
	modemLoopback   = 0x1e
	modemNormal     = 0x0f

	lineStatusTxEmpty = 0x20

	loopbackProbe = 0xae
	scratchProbe  = 0x5a

	// maxTxPolls bounds the wait for the transmit holding register so a
	// broken UART cannot hang the kernel.
	maxTxPolls = 1 << 16
)

var (
	// The following functions are mocked by tests.
	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte

	errLoopbackFailed = &kernel.Error{Module: "serial", Message: "loopback test failed"}

	// com1 is handed out by the COM1 detection routine. It lives in a
	// package variable so detection does not need the heap.
	com1 = Port{base: COM1, divisor: DefaultDivisor}

	// COM1Driver describes the COM1 UART to the hal. It is probed early so
	// the boot log reaches the serial line as soon as possible.
	COM1Driver = device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForCOM1,
	}
)

// Port is a UART driver that implements io.Writer.
type Port struct {
	base    uint16
	divisor uint16
}

// DriverName returns the name of this driver.
func (p *Port) DriverName() string {
	return "serial"
}

// DriverVersion returns the version of this driver.
func (p *Port) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit programs the UART for 8N1 operation with FIFOs enabled and
// verifies it with a loopback test.
func (p *Port) DriverInit(w io.Writer) *kernel.Error {
	p.out(regIntEnable, 0)
	p.out(regLineControl, lineControlDLAB)
	p.out(regData, uint8(p.divisor))
	p.out(regIntEnable, uint8(p.divisor>>8))
	p.out(regLineControl, lineControl8N1)
	p.out(regFIFOControl, fifoEnable)

	p.out(regModemCtrl, modemLoopback)
	p.out(regData, loopbackProbe)
	if got := p.in(regData); got != loopbackProbe {
		return errLoopbackFailed
	}
	p.out(regModemCtrl, modemNormal)

	kfmt.Fprintf(w, "port 0x%x, divisor %d\n", p.base, p.divisor)
	return nil
}

// Write transmits the contents of b. Line feeds are expanded to CR LF.
func (p *Port) Write(b []byte) (int, error) {
	for _, ch := range b {
		if ch == '\n' {
			p.writeByte('\r')
		}
		p.writeByte(ch)
	}

	return len(b), nil
}

func (p *Port) writeByte(ch byte) {
	for i := 0; i < maxTxPolls && p.in(regLineStatus)&lineStatusTxEmpty == 0; i++ {
	}
	p.out(regData, ch)
}

func (p *Port) out(reg uint16, val uint8) {
	portWriteByteFn(p.base+reg, val)
}

func (p *Port) in(reg uint16) uint8 {
	return portReadByteFn(p.base + reg)
}

// probeForCOM1 reports a driver for COM1 if its scratch register retains
// the value written to it.
func probeForCOM1() device.Driver {
	portWriteByteFn(COM1+regScratch, scratchProbe)
	if portReadByteFn(COM1+regScratch) != scratchProbe {
		return nil
	}

	return &com1
}
