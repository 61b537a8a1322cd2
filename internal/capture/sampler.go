package capture

import (
	"time"

	"github.com/fverao/powercapd/internal/device"
)

const (
	minSampleTolerance = 100
	toleranceFraction  = 0.01
	// A delay between reads longer than this fraction of the window
	// duration marks the next window as gapped, e.g. after a reconnect.
	interReadSlack = 1.1
)

// sampler pulls fixed-duration windows from an active device session and
// flags sample-count and timing gaps. lastRead survives reconnects so a
// retry-induced delay is visible on the first window afterwards.
type sampler struct {
	windowDuration time.Duration
	lastRead       time.Time
	now            func() time.Time
}

type windowRead struct {
	matrix   device.SampleMatrix
	start    time.Time
	end      time.Time
	duration float64
	gap      bool
	empty    bool
}

func newSampler(windowDuration time.Duration) *sampler {
	return &sampler{
		windowDuration: windowDuration,
		now:            time.Now,
	}
}

// sample performs one blocking read. An empty read is reported, not
// processed; the caller discards it without reusing the sequence number.
func (s *sampler) sample(dev device.Device, rate float64) (windowRead, error) {
	start := s.now()

	matrix, err := dev.Read(s.windowDuration)
	if err != nil {
		return windowRead{}, err
	}

	if matrix.Len() == 0 {
		return windowRead{empty: true, start: start}, nil
	}

	end := s.now()
	duration := end.Sub(start).Seconds()

	expected := rate * duration
	tolerance := expected * toleranceFraction
	if tolerance < minSampleTolerance {
		tolerance = minSampleTolerance
	}

	deviation := float64(matrix.Len()) - expected
	if deviation < 0 {
		deviation = -deviation
	}
	gap := deviation > tolerance

	if !s.lastRead.IsZero() && start.Sub(s.lastRead).Seconds() > s.windowDuration.Seconds()*interReadSlack {
		gap = true
	}
	s.lastRead = end

	return windowRead{
		matrix:   matrix,
		start:    start,
		end:      end,
		duration: duration,
		gap:      gap,
	}, nil
}
