package device

import "time"

// Info describes a device visible to a scan.
type Info struct {
	ID     string
	Name   string
	Serial string
}

// SampleMatrix holds one window of raw samples, column per channel.
// Both slices always have the same length.
type SampleMatrix struct {
	Current []float64
	Voltage []float64
}

func (m SampleMatrix) Len() int {
	return len(m.Current)
}

// Driver is the instrument driver collaborator. Implementations wrap the
// vendor's wire protocol; the capture engine never sees protocol details.
type Driver interface {
	// Scan lists the devices currently visible on the bus.
	Scan() ([]Info, error)

	// AcquireExclusive takes exclusive ownership of one device. An empty
	// selector picks the first device found.
	AcquireExclusive(selector string) (Device, error)
}

// Device is an exclusively owned, streaming-capable instrument session.
type Device interface {
	Info() Info

	// Configure sets a driver parameter, e.g. "buffer_duration" in seconds.
	Configure(param string, value any) error

	Start() error
	Stop() error

	// Read blocks until one contiguous window of the given duration has been
	// sampled and returns it. A read in flight cannot be preempted.
	Read(duration time.Duration) (SampleMatrix, error)

	// Close releases exclusive ownership.
	Close() error
}
