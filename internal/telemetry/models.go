// Package telemetry ingests proctoring telemetry (monitoring events,
// violations, heartbeats) from exam clients, classifies violation severity,
// and forwards everything to downstream sinks without blocking the HTTP
// path. Telemetry is best-effort by design: losing a single monitoring event
// is acceptable, blocking exam progress is not.
package telemetry

import (
	"encoding/json"
	"time"

	id "invigil/pkg/domain"
)

// Severity of a violation. Assigned at classification time; the value a
// client sends is only a hint.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Action is the classifier's recommendation. Executing it (flagging,
// terminating the exam session) is the exam-session lifecycle's job, never
// this package's.
type Action string

const (
	ActionLogOnly          Action = "log-only"
	ActionFlagForReview    Action = "flag-for-review"
	ActionTerminateSession Action = "terminate-session"
)

// MonitoringEvent is an append-only telemetry record emitted during a
// proctored exam. No uniqueness constraint; ordering is best-effort by
// client emission time.
type MonitoringEvent struct {
	ExamID      id.ExamID       `json:"exam_id"`
	StudentID   id.UserID       `json:"student_id"`
	EventType   string          `json:"event_type"`
	Message     string          `json:"message"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Environment string          `json:"environment,omitempty"`
	EmittedAt   time.Time       `json:"emitted_at"`
}

// ViolationEvent is telemetry carrying a severity hint from the detecting
// client. The hint never drives an action directly; Classifier assigns the
// authoritative severity.
type ViolationEvent struct {
	MonitoringEvent
	SeverityHint Severity `json:"severity"`
	AutoDetected bool     `json:"auto_detected"`
	Remediation  string   `json:"remediation,omitempty"`
}

// HeartbeatRecord is an ephemeral liveness signal. Only the most recent one
// per (student, exam) pair matters; none are persisted beyond the rolling
// window.
type HeartbeatRecord struct {
	StudentID id.UserID `json:"student_id"`
	ExamID    id.ExamID `json:"exam_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Decision is the classifier output for one violation.
type Decision struct {
	Severity Severity `json:"severity"`
	Action   Action   `json:"action"`
	// Escalated is set when the authoritative severity is higher than the
	// client's hint.
	Escalated bool `json:"escalated"`
}

// ClassifiedViolation pairs a violation with its authoritative decision for
// downstream consumers.
type ClassifiedViolation struct {
	Violation ViolationEvent `json:"violation"`
	Decision  Decision       `json:"decision"`
}

// ExamSession identifies a (student, exam) pair, the unit of heartbeat
// liveness and violation accumulation.
type ExamSession struct {
	StudentID id.UserID
	ExamID    id.ExamID
}
