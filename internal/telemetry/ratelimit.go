package telemetry

import (
	"sync"
	"time"

	id "invigil/pkg/domain"
)

// subjectLimiter rate-limits telemetry per subject with a sliding window.
// A runaway or malicious client gets rejected without affecting anyone
// else's exam.
type subjectLimiter struct {
	mu      sync.Mutex
	windows map[id.UserID][]time.Time
	limit   int
	window  time.Duration
	clock   func() time.Time
}

func newSubjectLimiter(limit int, window time.Duration) *subjectLimiter {
	return &subjectLimiter{
		windows: make(map[id.UserID][]time.Time),
		limit:   limit,
		window:  window,
		clock:   time.Now,
	}
}

// allow records one event for the subject and reports whether it fits in
// the window.
func (l *subjectLimiter) allow(userID id.UserID) bool {
	now := l.clock()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	timestamps := l.windows[userID]
	kept := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		l.windows[userID] = kept
		return false
	}

	l.windows[userID] = append(kept, now)
	return true
}
