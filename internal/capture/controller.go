package capture

import (
	"context"
	"sync"
	"time"

	"github.com/fverao/powercapd/internal/csvlog"
	"github.com/fverao/powercapd/internal/device"
	"github.com/fverao/powercapd/internal/errors"
	"github.com/fverao/powercapd/internal/history"
	"github.com/fverao/powercapd/internal/logger"
	"github.com/fverao/powercapd/internal/observability"
	"github.com/google/uuid"
)

const (
	defaultOutput      = "powercap_log.csv"
	defaultRetryDelay  = 10 * time.Second
	defaultStopTimeout = 15 * time.Second
)

// Options configures a Controller. Zero values fall back to production
// defaults; History and Metrics may be left nil.
type Options struct {
	LogDir      string
	Location    *time.Location
	RetryDelay  time.Duration
	StopTimeout time.Duration
	History     history.Recorder
	Metrics     *observability.Metrics
	Logger      logger.Logger
	Wait        WaitFunc
}

// Controller is the capture engine's control surface. It owns at most one
// background worker; a second concurrent session is rejected, not queued.
type Controller struct {
	driver device.Driver
	opts   Options
	status *StatusStore
	bus    *Bus

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewController(driver device.Driver, opts Options) *Controller {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	if opts.Wait == nil {
		opts.Wait = TickingWait
	}

	return &Controller{
		driver: driver,
		opts:   opts,
		status: NewStatusStore(),
		bus:    NewBus(opts.Logger),
	}
}

// Start launches a capture session. It fails synchronously with
// capture_already_running if a session is active.
func (c *Controller) Start(cfg Config) error {
	errFactory := errors.New()

	if cfg.WindowDuration <= 0 {
		return errFactory.WithData(errors.ErrInvalidArgument, "window duration must be positive")
	}
	if cfg.Output == "" {
		cfg.Output = defaultOutput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return errFactory.New(errors.ErrAlreadyRunning)
	}

	sessionID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.running = true
	c.cancel = cancel
	c.done = done

	c.status.Reset(sessionID, cfg.Output)
	c.opts.Metrics.SessionReset()

	c.opts.Logger.Info().
		Str("session_id", sessionID).
		Str("output", cfg.Output).
		Float64("window_duration", cfg.WindowDuration.Seconds()).
		Int("max_windows", cfg.MaxWindows).
		Msg("Capture session starting")

	go c.runWorker(ctx, cfg, sessionID, done)

	return nil
}

// Stop requests the worker to halt and waits up to the configured timeout
// for it to exit. A read in flight cannot be preempted, so the call may
// return with the worker still unwinding; it is never force-killed.
// Stopping a non-running controller is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-time.After(c.opts.StopTimeout):
		c.opts.Logger.Warn().
			Dur("timeout", c.opts.StopTimeout).
			Msg("Worker did not exit before stop timeout")
	}

	c.mu.Lock()
	if c.done == done {
		c.running = false
	}
	c.mu.Unlock()

	return nil
}

// Status returns a defensive copy of the session progress.
func (c *Controller) Status() StatusSnapshot {
	return c.status.Snapshot()
}

// Subscribe registers a window subscriber under the given id.
func (c *Controller) Subscribe(id string, sub Subscriber) error {
	return c.bus.Subscribe(id, sub)
}

// Unsubscribe removes a subscriber; unknown ids are ignored.
func (c *Controller) Unsubscribe(id string) {
	c.bus.Unsubscribe(id)
}

// ListDevices scans for currently visible devices.
func (c *Controller) ListDevices() ([]device.Info, error) {
	infos, err := c.driver.Scan()
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrDeviceScan, err)
	}

	return infos, nil
}

func (c *Controller) runWorker(ctx context.Context, cfg Config, sessionID string, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		if c.done == done {
			c.running = false
		}
		c.mu.Unlock()
		close(done)
	}()

	c.recordSessionStart(sessionID, cfg)

	plog, err := csvlog.Open(c.opts.LogDir, cfg.Output, c.opts.Location, c.opts.Logger)
	if err != nil {
		// The session still runs; windows reach status and subscribers.
		c.status.RecordError(err.Error())
		c.opts.Logger.Error().Err(err).Str("output", cfg.Output).
			Msg("Failed to open persistence log, continuing without it")
		plog = nil
	}

	w := &worker{
		cfg:     cfg,
		status:  c.status,
		bus:     c.bus,
		metrics: c.opts.Metrics,
		log:     c.opts.Logger,
		sampler: newSampler(cfg.WindowDuration),
		wait:    c.opts.Wait,
	}
	if plog != nil {
		w.plog = plog
	}

	sup := &supervisor{
		driver:         c.driver,
		status:         c.status,
		log:            c.opts.Logger,
		windowDuration: cfg.WindowDuration,
		samplingRate:   cfg.SamplingRate,
		retryDelay:     c.opts.RetryDelay,
		wait:           c.opts.Wait,
		stream:         w.stream,
		metrics:        c.opts.Metrics,
	}

	sup.run(ctx)

	if plog != nil {
		if err := plog.Close(); err != nil {
			c.opts.Logger.Warn().Err(err).Msg("Failed to close persistence log")
		}
	}

	c.status.SetStopped()
	c.recordSessionEnd(sessionID, cfg)

	c.opts.Logger.Info().
		Str("session_id", sessionID).
		Int("windows", c.status.Snapshot().WindowCount).
		Msg("Capture session ended")
}

func (c *Controller) recordSessionStart(sessionID string, cfg Config) {
	if c.opts.History == nil {
		return
	}
	err := c.opts.History.SessionStarted(history.Session{
		ID:           sessionID,
		OutputTarget: cfg.Output,
		StartedAt:    time.Now(),
	})
	if err != nil {
		c.opts.Logger.Warn().Err(err).Msg("Failed to record session start")
	}
}

func (c *Controller) recordSessionEnd(sessionID string, cfg Config) {
	if c.opts.History == nil {
		return
	}
	snap := c.status.Snapshot()
	err := c.opts.History.SessionEnded(history.Session{
		ID:           sessionID,
		OutputTarget: cfg.Output,
		EndedAt:      time.Now(),
		Windows:      snap.WindowCount,
		EnergyJoules: snap.CumulativeJoules,
		Reconnects:   snap.ReconnectCount,
		LastError:    snap.LastError,
	})
	if err != nil {
		c.opts.Logger.Warn().Err(err).Msg("Failed to record session end")
	}
}
