package telemetry

import (
	"sync"
	"time"
)

// HeartbeatTracker coalesces liveness signals: only the most recent
// heartbeat per (student, exam) pair is retained. A pair silent for more
// than 2x the expected cadence is a candidate disconnect; an external
// liveness monitor reads that via StaleSessions.
type HeartbeatTracker struct {
	mu      sync.RWMutex
	latest  map[ExamSession]time.Time
	cadence time.Duration
}

// NewHeartbeatTracker constructs a tracker for the given expected cadence.
func NewHeartbeatTracker(cadence time.Duration) *HeartbeatTracker {
	return &HeartbeatTracker{
		latest:  make(map[ExamSession]time.Time),
		cadence: cadence,
	}
}

// Record coalesces a heartbeat. Out-of-order arrivals never move the clock
// backwards.
func (t *HeartbeatTracker) Record(hb HeartbeatRecord) {
	key := ExamSession{StudentID: hb.StudentID, ExamID: hb.ExamID}
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.latest[key]; ok && last.After(hb.Timestamp) {
		return
	}
	t.latest[key] = hb.Timestamp
}

// LastSeen returns the most recent heartbeat time for a pair.
func (t *HeartbeatTracker) LastSeen(session ExamSession) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	last, ok := t.latest[session]
	return last, ok
}

// StaleSessions returns pairs whose last heartbeat is older than twice the
// cadence as of now - candidate disconnects, not verdicts.
func (t *HeartbeatTracker) StaleSessions(now time.Time) []ExamSession {
	threshold := 2 * t.cadence
	t.mu.RLock()
	defer t.mu.RUnlock()

	var stale []ExamSession
	for session, last := range t.latest {
		if now.Sub(last) > threshold {
			stale = append(stale, session)
		}
	}
	return stale
}

// Forget drops a pair's liveness state when its exam session ends.
func (t *HeartbeatTracker) Forget(session ExamSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.latest, session)
}
