// Package device defines the interface implemented by device drivers and the
// descriptors the hal package uses to discover them.
package device

import (
	"io"

	"nucleus/kernel"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it.
type ProbeFn func() Driver

// DetectOrder specifies when each driver's probe function will be invoked
// by the hal package.
type DetectOrder int8

const (
	// DetectOrderEarly drivers are probed before any other driver. Output
	// devices that should capture the boot log use this order.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderNormal is the default detection order.
	DetectOrderNormal DetectOrder = 0

	// DetectOrderLast drivers are probed after all other drivers.
	DetectOrderLast DetectOrder = 127
)

// DriverInfo describes how the hal detects a particular device.
type DriverInfo struct {
	// Order specifies at which stage of the hw detection the driver's
	// probe function should be invoked.
	Order DetectOrder

	// Probe is invoked to check for the presence of the hardware.
	Probe ProbeFn
}

// DriverInfoList is a list of driver info entries.
type DriverInfoList []*DriverInfo

// Sort orders the list by detection order in place. Entries with the same
// order keep their relative position. Sort does not allocate, unlike
// sort.Stable which would box the list into an interface.
func (l DriverInfoList) Sort() {
	for i := 1; i < len(l); i++ {
		for j := i; j > 0 && l[j].Order < l[j-1].Order; j-- {
			l[j], l[j-1] = l[j-1], l[j]
		}
	}
}
