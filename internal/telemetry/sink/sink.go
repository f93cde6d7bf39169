// Package sink delivers telemetry to downstream consumers. Delivery is
// best-effort: a failing sink is logged and the event dropped, never
// retried indefinitely and never surfaced to the exam-taking client.
package sink

import "context"

// Record is one telemetry item bound for downstream storage or streaming.
// Key carries the subject id so partitioned transports preserve per-subject
// order.
type Record struct {
	Kind  string // "monitoring", "violation", "heartbeat"
	Key   string
	Value []byte
}

// Sink accepts telemetry records. Implementations must be safe for
// concurrent use by the dispatcher and the liveness monitor.
type Sink interface {
	Publish(ctx context.Context, record Record) error
	Close()
}
