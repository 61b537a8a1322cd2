package device

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/fverao/powercapd/internal/errors"
	"github.com/google/uuid"
)

const (
	simDefaultRate = 100000.0
	simVoltage     = 5.0
	simBaseCurrent = 0.120
	simRippleHz    = 50.0
)

// SimDriver is a synthetic driver producing a plausible DC load profile:
// a stable supply voltage and a base current with mains-frequency ripple
// and measurement noise. It exists so the daemon and the tests can run
// without an instrument attached.
type SimDriver struct {
	mu       sync.Mutex
	info     Info
	rate     float64
	acquired bool
}

func NewSimDriver(rate float64) *SimDriver {
	if rate <= 0 {
		rate = simDefaultRate
	}
	serial := uuid.NewString()

	return &SimDriver{
		info: Info{
			ID:     "sim-" + serial[:8],
			Name:   "Simulated Power Monitor",
			Serial: serial,
		},
		rate: rate,
	}
}

func (d *SimDriver) Scan() ([]Info, error) {
	return []Info{d.info}, nil
}

func (d *SimDriver) AcquireExclusive(selector string) (Device, error) {
	errFactory := errors.New()

	d.mu.Lock()
	defer d.mu.Unlock()

	if selector != "" && selector != d.info.ID && selector != d.info.Serial {
		return nil, errFactory.WithData(ErrNotFound, selector)
	}
	if d.acquired {
		return nil, errFactory.WithData(ErrBusy, d.info.ID)
	}
	d.acquired = true

	return &simDevice{driver: d, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}, nil
}

func (d *SimDriver) release() {
	d.mu.Lock()
	d.acquired = false
	d.mu.Unlock()
}

type simDevice struct {
	driver    *SimDriver
	rng       *rand.Rand
	mu        sync.Mutex
	streaming bool
	phase     float64
	closed    bool
}

func (s *simDevice) Info() Info {
	return s.driver.info
}

func (s *simDevice) Configure(param string, value any) error {
	switch param {
	case "buffer_duration":
		switch value.(type) {
		case float64, int:
			return nil
		}
	}

	return errors.New().WithData(ErrBadParameter, param)
}

func (s *simDevice) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = true

	return nil
}

func (s *simDevice) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = false

	return nil
}

func (s *simDevice) Read(duration time.Duration) (SampleMatrix, error) {
	s.mu.Lock()
	streaming := s.streaming
	s.mu.Unlock()

	if !streaming {
		return SampleMatrix{}, errors.New().New(ErrNotStreaming)
	}

	time.Sleep(duration)

	n := int(math.Round(s.driver.rate * duration.Seconds()))
	matrix := SampleMatrix{
		Current: make([]float64, n),
		Voltage: make([]float64, n),
	}

	dt := 1.0 / s.driver.rate
	for i := 0; i < n; i++ {
		ripple := 0.010 * math.Sin(2*math.Pi*simRippleHz*s.phase)
		noise := 0.0005 * s.rng.NormFloat64()
		matrix.Current[i] = simBaseCurrent + ripple + noise
		matrix.Voltage[i] = simVoltage + 0.002*s.rng.NormFloat64()
		s.phase += dt
	}

	return matrix, nil
}

func (s *simDevice) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.streaming = false
		s.driver.release()
	}

	return nil
}
