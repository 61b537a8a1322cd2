package capture

import (
	"time"

	"github.com/fverao/powercapd/internal/stats"
)

// Config describes one capture session.
type Config struct {
	// WindowDuration is the fixed duration of each sample window.
	WindowDuration time.Duration

	// SamplingRate is the nominal rate in Hz. Zero requests auto-detection
	// during connect.
	SamplingRate float64

	// MaxWindows stops the session cleanly after this many windows.
	// Zero means unlimited.
	MaxWindows int

	// Output is the log target name; one log file per target, reused
	// across reconnects and restarts.
	Output string
}

// Window is the immutable result of one successfully processed sample
// window. Sequence numbers are monotonically non-decreasing within a
// session and never reused; discarded empty reads leave gaps.
type Window struct {
	Sequence int       `json:"window_num"`
	Start    time.Time `json:"window_start"`
	End      time.Time `json:"window_end"`
	Duration float64   `json:"duration"`
	Samples  int       `json:"samples"`

	Current stats.Channel `json:"current"`
	Voltage stats.Channel `json:"voltage"`
	Power   stats.Channel `json:"power"`

	EnergyJoules         float64 `json:"energy_joules"`
	EnergyMilliwattHrs   float64 `json:"energy_mwh"`
	CumulativeJoules     float64 `json:"total_energy"`
	CumulativeMilliwattH float64 `json:"total_energy_mwh"`

	Gap bool `json:"gap_detected"`
}
