// Package hal probes for the devices the kernel core needs and wires the
// first output-capable driver up as the kfmt sink. Detection runs before the
// heap exists, so nothing on this path allocates.
package hal

import (
	"io"

	"nucleus/device"
	"nucleus/device/serial"
	"nucleus/kernel/kfmt"
)

// maxActiveDrivers bounds the number of drivers the hal keeps track of.
const maxActiveDrivers = 8

// managedDevices contains the devices discovered by the HAL.
type managedDevices struct {
	// activeSink is the driver currently receiving kfmt output.
	activeSink io.Writer

	// activeDrivers tracks all initialized device drivers.
	activeDrivers [maxActiveDrivers]device.Driver
	activeCount   int
}

// prefixBuffer is a fixed-capacity io.Writer used to render the per-driver
// log prefix. Output beyond its capacity is dropped.
type prefixBuffer struct {
	buf [64]byte
	len int
}

func (b *prefixBuffer) Reset() { b.len = 0 }

func (b *prefixBuffer) Bytes() []byte { return b.buf[:b.len] }

func (b *prefixBuffer) Write(p []byte) (int, error) {
	b.len += copy(b.buf[b.len:], p)
	return len(p), nil
}

var (
	devices managedDevices

	// drivers lists every driver built into the kernel core.
	drivers = device.DriverInfoList{
		&serial.COM1Driver,
	}

	prefix    prefixBuffer
	logWriter kfmt.PrefixWriter

	// The following functions are mocked by tests.
	driverListFn    = builtinDrivers
	setOutputSinkFn = kfmt.SetOutputSink
)

func builtinDrivers() device.DriverInfoList {
	return drivers
}

// ActiveDrivers returns the drivers initialized by DetectHardware.
func ActiveDrivers() []device.Driver {
	return devices.activeDrivers[:devices.activeCount]
}

// DetectHardware probes for hardware devices and initializes the appropriate
// drivers.
func DetectHardware() {
	// Get driver list and sort by detection priority
	list := driverListFn()
	list.Sort()

	probe(list)
}

// probe executes the probe function for each driver and invokes
// onDriverInit for each successfully initialized driver.
func probe(driverInfoList device.DriverInfoList) {
	logWriter = kfmt.PrefixWriter{Sink: kfmt.ActiveSink()}

	for _, info := range driverInfoList {
		drv := info.Probe()
		if drv == nil {
			continue
		}

		prefix.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&prefix, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		logWriter.Prefix = prefix.Bytes()

		if devices.activeCount == maxActiveDrivers {
			kfmt.Fprintf(&logWriter, "skipped: driver table full\n")
			continue
		}

		if err := drv.DriverInit(&logWriter); err != nil {
			kfmt.Fprintf(&logWriter, "init failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(&logWriter, "initialized\n")
		onDriverInit(drv)
		devices.activeDrivers[devices.activeCount] = drv
		devices.activeCount++
	}
}

// onDriverInit is invoked by probe() whenever a piece of hardware is detected
// and successfully initialized. The first driver that can accept output
// becomes the kfmt sink; anything logged before that point is flushed to it.
func onDriverInit(drv device.Driver) {
	if devices.activeSink != nil {
		return
	}

	if sink, ok := drv.(io.Writer); ok {
		devices.activeSink = sink
		setOutputSinkFn(sink)
	}
}
