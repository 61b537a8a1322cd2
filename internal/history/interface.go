package history

import "time"

// Recorder persists capture-session summaries.
type Recorder interface {
	SessionStarted(s Session) error
	SessionEnded(s Session) error
	Close() error
}

// Session is one capture run from start to teardown.
type Session struct {
	ID           string
	OutputTarget string
	StartedAt    time.Time
	EndedAt      time.Time
	Windows      int
	EnergyJoules float64
	Reconnects   int
	LastError    string
}
