package capture

import (
	"sync"
	"time"
)

// StatusSnapshot is a value copy of session progress. Readers never see a
// live reference, so a snapshot can never expose a torn update.
type StatusSnapshot struct {
	Running          bool
	SessionID        string
	OutputTarget     string
	StartTime        time.Time
	SamplingRate     float64
	WindowCount      int
	CumulativeJoules float64
	ReconnectCount   int
	LastError        string

	LastWindow    Window
	HasLastWindow bool
}

// StatusStore is the shared session-progress cell. The worker writes under
// the lock; control-surface readers get defensive copies under the same
// lock.
type StatusStore struct {
	mu   sync.Mutex
	snap StatusSnapshot
}

func NewStatusStore() *StatusStore {
	return &StatusStore{}
}

// Reset initializes the store for a new session.
func (s *StatusStore) Reset(sessionID, outputTarget string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap = StatusSnapshot{
		Running:      true,
		SessionID:    sessionID,
		OutputTarget: outputTarget,
	}
}

// SetStreaming records a successful connect: start time, resolved sampling
// rate, and a cleared error.
func (s *StatusStore) SetStreaming(start time.Time, samplingRate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.StartTime = start
	s.snap.SamplingRate = samplingRate
	s.snap.LastError = ""
}

// RecordWindow publishes one processed window into the snapshot.
func (s *StatusStore) RecordWindow(w Window) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.WindowCount = w.Sequence
	s.snap.CumulativeJoules = w.CumulativeJoules
	s.snap.LastWindow = w
	s.snap.HasLastWindow = true
}

// RecordError sets the last error message without touching counters.
func (s *StatusStore) RecordError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.LastError = msg
}

// RecordReconnect sets the last error and bumps the reconnect counter.
func (s *StatusStore) RecordReconnect(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.LastError = msg
	s.snap.ReconnectCount++
}

// SetStopped marks the session as no longer running.
func (s *StatusStore) SetStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Running = false
}

// Snapshot returns a defensive copy of the current state.
func (s *StatusStore) Snapshot() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snap
}
