package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var escalationsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "invigil_violations_escalated_total",
	Help: "Violations whose classified severity exceeded the client hint",
})

// escalationThreshold is the accumulated violation count at which a
// warning-hinted violation classifies as critical: the third strike for the
// same (student, exam) pair within the exam window.
const escalationThreshold = 3

// Classifier assigns the authoritative severity and recommended action for
// violations. The client's severity is a hint: it may be escalated based on
// accumulated history, never silently downgraded from critical.
//
// The classifier owns nothing but its counters. It recommends; the
// exam-session lifecycle executes.
type Classifier struct {
	mu     sync.Mutex
	counts map[ExamSession]*violationWindow
	window time.Duration
	clock  func() time.Time
}

type violationWindow struct {
	count     int
	startedAt time.Time
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithClassifierClock sets the clock function for testability.
func WithClassifierClock(clock func() time.Time) ClassifierOption {
	return func(c *Classifier) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewClassifier constructs a classifier whose accumulation window matches
// the exam duration.
func NewClassifier(window time.Duration, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		counts: make(map[ExamSession]*violationWindow),
		window: window,
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Classify assigns severity and action for one violation.
//
// Severity: a critical hint stays critical; a warning hint escalates to
// critical once the pair's accumulated count reaches the threshold within
// the window.
//
// Action: terminate-session is only ever recommended for critical,
// auto-detected violations - client-side heuristics are trusted more than
// manually triggered reports for auto-action. Manually reported criticals
// are flagged for a human instead.
func (c *Classifier) Classify(v ViolationEvent) Decision {
	count := c.bump(ExamSession{StudentID: v.StudentID, ExamID: v.ExamID})

	severity := SeverityWarning
	escalated := false
	switch {
	case v.SeverityHint == SeverityCritical:
		severity = SeverityCritical
	case count >= escalationThreshold:
		severity = SeverityCritical
		escalated = true
		escalationsTotal.Inc()
	}

	action := ActionLogOnly
	if severity == SeverityCritical {
		if v.AutoDetected {
			action = ActionTerminateSession
		} else {
			action = ActionFlagForReview
		}
	} else if count > 1 {
		action = ActionFlagForReview
	}

	return Decision{Severity: severity, Action: action, Escalated: escalated}
}

// bump increments the pair's accumulated count, restarting the window when
// the previous one has lapsed, and returns the new count.
func (c *Classifier) bump(session ExamSession) int {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.counts[session]
	if w == nil || now.Sub(w.startedAt) > c.window {
		w = &violationWindow{startedAt: now}
		c.counts[session] = w
	}
	w.count++
	return w.count
}

// Reset clears a pair's accumulated count, typically when its exam session
// ends.
func (c *Classifier) Reset(session ExamSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, session)
}
