package capture

import (
	"context"
	"time"

	"github.com/fverao/powercapd/internal/csvlog"
	"github.com/fverao/powercapd/internal/device"
	"github.com/fverao/powercapd/internal/errors"
	"github.com/fverao/powercapd/internal/logger"
	"github.com/fverao/powercapd/internal/observability"
	"github.com/fverao/powercapd/internal/stats"
)

const (
	emptyReadSettle   = 100 * time.Millisecond
	streamStartSettle = 500 * time.Millisecond
)

// appender persists one window record. *csvlog.Log satisfies it.
type appender interface {
	Append(rec csvlog.Record) error
}

// worker runs the sampling pipeline on the single background goroutine.
// Sequence numbers, cumulative energy and the sampler's read clock live
// here so they survive reconnect cycles within a session.
type worker struct {
	cfg     Config
	status  *StatusStore
	bus     *Bus
	metrics *observability.Metrics
	log     logger.Logger
	plog    appender
	sampler *sampler
	wait    WaitFunc

	seq       int
	cumJoules float64
}

// stream is the Streaming phase: read windows until stop, cap, or an I/O
// fault. A nil return is a clean end; an error unwinds to the supervisor.
func (w *worker) stream(ctx context.Context, dev device.Device, rate float64) error {
	errFactory := errors.New()

	if err := dev.Start(); err != nil {
		return errFactory.Wrap(errors.ErrDeviceIO, err)
	}
	w.status.SetStreaming(time.Now(), rate)
	if !w.wait(ctx, streamStartSettle) {
		return nil
	}

	for ctx.Err() == nil {
		if w.cfg.MaxWindows > 0 && w.seq >= w.cfg.MaxWindows {
			w.log.Info().Int("windows", w.seq).Msg("Window cap reached, capture complete")
			return nil
		}

		// The sequence number is consumed even when the attempt yields
		// nothing, so discarded reads leave visible numbering gaps.
		w.seq++

		read, err := w.sampler.sample(dev, rate)
		if err != nil {
			w.status.RecordError(err.Error())
			return errFactory.Wrap(errors.ErrDeviceIO, err)
		}

		if read.empty {
			w.metrics.EmptyRead()
			w.log.Debug().Int("sequence", w.seq).Msg("Empty read discarded")
			w.wait(ctx, emptyReadSettle)
			continue
		}

		w.process(read, rate)
	}

	return nil
}

func (w *worker) process(read windowRead, rate float64) {
	result := stats.Compute(read.matrix, rate)
	w.cumJoules += result.EnergyJoules

	window := Window{
		Sequence:             w.seq,
		Start:                read.start,
		End:                  read.end,
		Duration:             read.duration,
		Samples:              result.Samples,
		Current:              result.Current,
		Voltage:              result.Voltage,
		Power:                result.Power,
		EnergyJoules:         result.EnergyJoules,
		EnergyMilliwattHrs:   result.EnergyMilliwattHrs,
		CumulativeJoules:     w.cumJoules,
		CumulativeMilliwattH: w.cumJoules * stats.JoulesToMilliwattHours,
		Gap:                  read.gap,
	}

	if w.plog != nil {
		err := w.plog.Append(csvlog.Record{
			Timestamp:        time.Now(),
			WindowStart:      window.Start,
			WindowEnd:        window.End,
			Duration:         window.Duration,
			Stats:            result,
			CumulativeJoules: window.CumulativeJoules,
			Gap:              window.Gap,
		})
		if err != nil {
			// Row dropped, session continues; the window still reaches
			// status and subscribers.
			w.metrics.PersistenceError()
			w.status.RecordError(err.Error())
			w.log.Error().Err(err).Int("sequence", window.Sequence).
				Msg("Failed to persist window")
		}
	}

	w.status.RecordWindow(window)
	w.bus.Publish(window)
	w.metrics.WindowProcessed(window.Gap, w.cumJoules, time.Since(read.end).Seconds())

	w.log.Debug().
		Int("sequence", window.Sequence).
		Int("samples", window.Samples).
		Float64("energy_j", window.EnergyJoules).
		Bool("gap", window.Gap).
		Msg("Window processed")
}
