package capture

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/fverao/powercapd/internal/device"
	"github.com/fverao/powercapd/internal/errors"
)

// fakeRead scripts one Read call on the fake device.
type fakeRead struct {
	matrix device.SampleMatrix
	err    error
	delay  time.Duration
}

// fakeDevice replays a scripted sequence of reads. Once the script is
// exhausted the last entry repeats, so unlimited sessions keep streaming.
type fakeDevice struct {
	mu       sync.Mutex
	script   []fakeRead
	next     int
	startErr error
	readErr  error
	started  bool
	closed   bool
	configs  map[string]any
}

func newFakeDevice(script ...fakeRead) *fakeDevice {
	return &fakeDevice{
		script:  script,
		configs: make(map[string]any),
	}
}

func (d *fakeDevice) Info() device.Info {
	return device.Info{ID: "fake-0", Name: "Fake Meter", Serial: "FAKE0001"}
}

func (d *fakeDevice) Configure(param string, value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.configs[param] = value

	return nil
}

func (d *fakeDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.startErr != nil {
		return d.startErr
	}
	d.started = true

	return nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.started = false

	return nil
}

func (d *fakeDevice) Read(_ time.Duration) (device.SampleMatrix, error) {
	d.mu.Lock()
	if d.readErr != nil {
		err := d.readErr
		d.mu.Unlock()
		return device.SampleMatrix{}, err
	}
	if len(d.script) == 0 {
		d.mu.Unlock()
		return device.SampleMatrix{}, nil
	}
	idx := d.next
	if idx >= len(d.script) {
		idx = len(d.script) - 1
	}
	d.next++
	read := d.script[idx]
	d.mu.Unlock()

	if read.delay > 0 {
		time.Sleep(read.delay)
	}

	return read.matrix, read.err
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true

	return nil
}

// fakeDriver reports no devices for the first scanFailures scans, then
// hands out dev.
type fakeDriver struct {
	mu           sync.Mutex
	scanFailures int
	scans        int
	acquires     int
	dev          *fakeDevice
}

func (f *fakeDriver) Scan() ([]device.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.scans++
	if f.scans <= f.scanFailures {
		return nil, nil
	}

	return []device.Info{f.dev.Info()}, nil
}

func (f *fakeDriver) AcquireExclusive(_ string) (device.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dev == nil {
		return nil, errors.New().New(errors.ErrDeviceNotFound)
	}
	f.acquires++

	return f.dev, nil
}

// instantWait never sleeps; it only honors cancellation.
func instantWait(ctx context.Context, _ time.Duration) bool {
	return ctx.Err() == nil
}

// flatMatrix builds n samples of constant current and voltage.
func flatMatrix(n int, current, voltage float64) device.SampleMatrix {
	m := device.SampleMatrix{
		Current: make([]float64, n),
		Voltage: make([]float64, n),
	}
	for i := range m.Current {
		m.Current[i] = current
		m.Voltage[i] = voltage
	}

	return m
}

func approxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}
