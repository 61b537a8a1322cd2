package capture

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fverao/powercapd/internal/device"
	"github.com/fverao/powercapd/internal/errors"
	"github.com/fverao/powercapd/internal/logger"
	"github.com/fverao/powercapd/internal/observability"
)

// State is the connection supervisor's current phase.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateStreaming
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	minBufferSeconds    = 2.0
	calibrationSettle   = 200 * time.Millisecond
	calibrationWindow   = 100 * time.Millisecond
	defaultSampleRate   = 1000000.0
	waitTickGranularity = time.Second
)

// WaitFunc blocks for up to d and reports whether the wait completed.
// A false return means the context was cancelled. Injectable so tests can
// retry without real sleeps.
type WaitFunc func(ctx context.Context, d time.Duration) bool

// TickingWait waits in one-second ticks so a stop request takes effect
// within about a second even during a long retry delay.
func TickingWait(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		step := waitTickGranularity
		if remaining < step {
			step = remaining
		}
		if !sleepCtx(ctx, step) {
			return false
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// streamFunc runs the sampling pipeline on a prepared device session.
// A nil return means the session ended cleanly (stop request or window
// cap); an error unwinds to the supervisor for a reconnect cycle.
type streamFunc func(ctx context.Context, dev device.Device, rate float64) error

// supervisor owns device acquisition and the retry state machine. Backoff
// is a fixed delay and the retry count is unbounded: a permanently absent
// instrument produces a visible retry loop, never termination.
type supervisor struct {
	driver         device.Driver
	status         *StatusStore
	log            logger.Logger
	windowDuration time.Duration
	samplingRate   float64
	retryDelay     time.Duration
	wait           WaitFunc
	stream         streamFunc
	metrics        *observability.Metrics
	state          atomic.Int32
}

func (s *supervisor) State() State {
	return State(s.state.Load())
}

func (s *supervisor) setState(st State) {
	s.state.Store(int32(st))
	s.log.Debug().Str("state", st.String()).Msg("Supervisor state")
}

func (s *supervisor) run(ctx context.Context) {
	errFactory := errors.New()
	s.setState(StateIdle)

	for ctx.Err() == nil {
		s.setState(StateScanning)
		infos, err := s.driver.Scan()
		if err != nil || len(infos) == 0 {
			notFound := errFactory.New(errors.ErrDeviceNotFound)
			if err != nil {
				notFound = errFactory.Wrap(errors.ErrDeviceNotFound, err)
			}
			s.retry(ctx, notFound)
			continue
		}

		s.setState(StateConnecting)
		dev, err := s.driver.AcquireExclusive("")
		if err != nil {
			s.retry(ctx, errFactory.Wrap(errors.ErrDeviceIO, err))
			continue
		}

		rate := s.prepare(ctx, dev)

		s.setState(StateStreaming)
		streamErr := s.stream(ctx, dev, rate)
		s.release(dev)

		if streamErr == nil {
			break
		}
		s.retry(ctx, streamErr)
	}

	s.setState(StateStopped)
}

func (s *supervisor) retry(ctx context.Context, cause error) {
	s.status.RecordReconnect(cause.Error())
	s.metrics.Reconnect()
	s.log.Warn().
		Err(cause).
		Dur("retry_delay", s.retryDelay).
		Msg("Device unavailable, retrying")

	s.setState(StateReconnecting)
	s.wait(ctx, s.retryDelay)
}

// prepare configures device buffering and resolves the sampling rate,
// auto-detecting it with a short calibration read when none is configured.
func (s *supervisor) prepare(ctx context.Context, dev device.Device) float64 {
	buffer := s.windowDuration.Seconds() * 2
	if buffer < minBufferSeconds {
		buffer = minBufferSeconds
	}
	if err := dev.Configure("buffer_duration", buffer); err != nil {
		s.log.Debug().Err(err).Msg("Device rejected buffer_duration, using driver default")
	}

	if s.samplingRate > 0 {
		return s.samplingRate
	}

	return s.calibrate(ctx, dev)
}

func (s *supervisor) calibrate(ctx context.Context, dev device.Device) float64 {
	if err := dev.Start(); err != nil {
		s.log.Warn().Err(err).Msg("Calibration start failed, assuming default rate")
		return defaultSampleRate
	}

	sleepCtx(ctx, calibrationSettle)
	matrix, err := dev.Read(calibrationWindow)
	if stopErr := dev.Stop(); stopErr != nil {
		s.log.Debug().Err(stopErr).Msg("Calibration stop failed")
	}

	if err != nil || matrix.Len() == 0 {
		s.log.Warn().Err(err).Msg("Calibration read failed, assuming default rate")
		return defaultSampleRate
	}

	rate := float64(matrix.Len()) / calibrationWindow.Seconds()
	s.log.Info().Float64("sampling_rate", rate).Msg("Auto-detected sampling rate")

	return rate
}

func (s *supervisor) release(dev device.Device) {
	if err := dev.Stop(); err != nil {
		s.log.Debug().Err(err).Msg("Device stop on release failed")
	}
	if err := dev.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Device release failed")
	}
}
