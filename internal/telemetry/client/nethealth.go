// Package client holds the exam-client side of the telemetry pipeline:
// connectivity-aware event delivery and the heartbeat runner. It talks to
// the ingestor only through narrow interfaces so tests can observe
// delivery order without a server.
package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"invigil/internal/telemetry"
)

// Snapshot is the current connectivity picture the emitting client acts on.
type Snapshot struct {
	IsOnline      bool
	Downlink      float64 // Mbps, 0 when unknown
	EffectiveType string  // e.g. "4g", "wifi"
	RTT           time.Duration
}

// Forwarder delivers telemetry to the ingest side.
type Forwarder interface {
	ForwardEvent(ctx context.Context, event telemetry.MonitoringEvent) error
	ForwardViolation(ctx context.Context, violation telemetry.ViolationEvent) error
}

type queued struct {
	monitoring *telemetry.MonitoringEvent
	violation  *telemetry.ViolationEvent
}

// Tracker maintains the Online/Offline state machine and gates telemetry
// delivery on it. While offline, emitted events buffer locally in emission
// order; the Offline-to-Online transition flushes them before any new event
// goes out. The initial state is sampled eagerly at construction, so the
// tracker always reflects a known state even if no connectivity signal ever
// fires.
type Tracker struct {
	mu       sync.Mutex
	snapshot Snapshot
	pending  []queued
	forward  Forwarder
	logger   *slog.Logger
}

// NewTracker constructs a tracker with an eagerly sampled initial snapshot.
func NewTracker(initial Snapshot, forward Forwarder, logger *slog.Logger) *Tracker {
	return &Tracker{
		snapshot: initial,
		forward:  forward,
		logger:   logger,
	}
}

// Snapshot returns the last known connectivity state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot
}

// Update applies a connectivity signal. An Offline-to-Online transition
// flushes the buffered backlog in original emission order.
func (t *Tracker) Update(ctx context.Context, s Snapshot) {
	t.mu.Lock()
	wasOnline := t.snapshot.IsOnline
	t.snapshot = s
	t.mu.Unlock()

	if !wasOnline && s.IsOnline {
		t.flush(ctx)
	}
}

// EmitEvent delivers a monitoring event immediately when online, otherwise
// buffers it.
func (t *Tracker) EmitEvent(ctx context.Context, event telemetry.MonitoringEvent) error {
	if t.buffered(queued{monitoring: &event}) {
		return nil
	}
	return t.forward.ForwardEvent(ctx, event)
}

// EmitViolation delivers a violation immediately when online, otherwise
// buffers it.
func (t *Tracker) EmitViolation(ctx context.Context, violation telemetry.ViolationEvent) error {
	if t.buffered(queued{violation: &violation}) {
		return nil
	}
	return t.forward.ForwardViolation(ctx, violation)
}

// PendingCount reports how many events are waiting for connectivity.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// buffered appends q to the backlog when offline and reports whether it did.
// Delivery order is preserved: once anything is pending, new events join the
// queue even if the tracker has just gone online, so the backlog always
// drains first.
func (t *Tracker) buffered(q queued) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snapshot.IsOnline && len(t.pending) == 0 {
		return false
	}
	t.pending = append(t.pending, q)
	return true
}

// flush drains the backlog in order. A delivery failure stops the flush and
// keeps the remainder queued for the next transition - nothing is dropped,
// nothing is sent twice.
func (t *Tracker) flush(ctx context.Context) {
	for {
		t.mu.Lock()
		if !t.snapshot.IsOnline || len(t.pending) == 0 {
			t.mu.Unlock()
			return
		}
		next := t.pending[0]
		t.mu.Unlock()

		var err error
		switch {
		case next.monitoring != nil:
			err = t.forward.ForwardEvent(ctx, *next.monitoring)
		case next.violation != nil:
			err = t.forward.ForwardViolation(ctx, *next.violation)
		}
		if err != nil {
			t.logger.Warn("telemetry flush interrupted, backlog retained",
				"error", err,
				"pending", t.PendingCount(),
			)
			return
		}

		t.mu.Lock()
		t.pending = t.pending[1:]
		t.mu.Unlock()
	}
}
