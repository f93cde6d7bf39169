package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"invigil/internal/telemetry/sink"
	id "invigil/pkg/domain"
	dErrors "invigil/pkg/domain-errors"
	"invigil/pkg/requestcontext"
)

var (
	eventsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invigil_telemetry_accepted_total",
		Help: "Telemetry items accepted into the ingest queue",
	}, []string{"kind"})
	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invigil_telemetry_dropped_total",
		Help: "Telemetry items dropped (queue overflow or delivery failure)",
	}, []string{"reason"})
	eventsRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invigil_telemetry_rate_limited_total",
		Help: "Telemetry items rejected by the per-subject rate limit",
	})
)

// dispatchBatchSize bounds how many items one drain pass hands downstream.
const dispatchBatchSize = 64

// Hooks is the exam-session lifecycle collaborator. The dispatcher feeds it
// classification decisions; whatever it does with them (flagging,
// auto-submit) is outside this package.
type Hooks interface {
	OnDecision(ctx context.Context, classified ClassifiedViolation)
}

// NopHooks discards decisions. Used when no lifecycle collaborator is wired.
type NopHooks struct{}

func (NopHooks) OnDecision(context.Context, ClassifiedViolation) {}

// Ingestor accepts telemetry on the HTTP path and forwards it downstream
// from a background dispatcher, so a slow classifier or sink never
// backpressures an exam in progress.
//
// The caller has already authenticated the session; the ingestor still
// enforces that each item's subject matches the authenticated subject and
// applies a per-subject rate limit.
type Ingestor struct {
	buffer     *ringBuffer
	notify     chan struct{}
	classifier *Classifier
	heartbeats *HeartbeatTracker
	limiter    *subjectLimiter
	sinks      []sink.Sink
	hooks      Hooks
	logger     *slog.Logger
}

// IngestorConfig wires an Ingestor.
type IngestorConfig struct {
	// QueueCapacity bounds the ingest queue; overflow drops the oldest item.
	QueueCapacity int
	// RateLimit is the max telemetry items per subject per RateWindow.
	RateLimit  int
	RateWindow time.Duration
	Classifier *Classifier
	Heartbeats *HeartbeatTracker
	Sinks      []sink.Sink
	Hooks      Hooks
	Logger     *slog.Logger
}

// NewIngestor constructs an Ingestor. Run must be started for items to move
// downstream.
func NewIngestor(cfg IngestorConfig) *Ingestor {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 120
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.Hooks == nil {
		cfg.Hooks = NopHooks{}
	}
	return &Ingestor{
		buffer:     newRingBuffer(cfg.QueueCapacity),
		notify:     make(chan struct{}, 1),
		classifier: cfg.Classifier,
		heartbeats: cfg.Heartbeats,
		limiter:    newSubjectLimiter(cfg.RateLimit, cfg.RateWindow),
		sinks:      cfg.Sinks,
		hooks:      cfg.Hooks,
		logger:     cfg.Logger,
	}
}

// AcceptEvent queues a monitoring event. Returns immediately; delivery is
// asynchronous and best-effort.
func (i *Ingestor) AcceptEvent(ctx context.Context, event MonitoringEvent) error {
	if err := i.gate(ctx, event.StudentID); err != nil {
		return err
	}
	i.prepare(ctx, &event)
	i.push(item{monitoring: &event}, "monitoring")
	return nil
}

// AcceptViolation queues a violation event for classification.
func (i *Ingestor) AcceptViolation(ctx context.Context, violation ViolationEvent) error {
	if err := i.gate(ctx, violation.StudentID); err != nil {
		return err
	}
	if violation.SeverityHint != SeverityCritical {
		// Unknown or absent hints are treated as the lowest severity; the
		// classifier can only escalate from there.
		violation.SeverityHint = SeverityWarning
	}
	i.prepare(ctx, &violation.MonitoringEvent)
	i.push(item{violation: &violation}, "violation")
	return nil
}

// AcceptHeartbeat coalesces a liveness signal. Heartbeats bypass the queue,
// only the latest per pair matters, but they pass the same gate as events:
// subject match plus the shared per-subject rate budget.
func (i *Ingestor) AcceptHeartbeat(ctx context.Context, hb HeartbeatRecord) error {
	if err := i.gate(ctx, hb.StudentID); err != nil {
		return err
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = requestcontext.Now(ctx)
	}
	i.heartbeats.Record(hb)
	eventsAccepted.WithLabelValues("heartbeat").Inc()
	return nil
}

// Stale reports candidate-disconnect exam sessions as of now.
func (i *Ingestor) Stale(now time.Time) []ExamSession {
	return i.heartbeats.StaleSessions(now)
}

func (i *Ingestor) gate(ctx context.Context, subject id.UserID) error {
	authenticated := requestcontext.UserID(ctx)
	if authenticated != subject {
		return dErrors.New(dErrors.CodeForbidden, "telemetry subject does not match session")
	}
	if !i.limiter.allow(authenticated) {
		eventsRateLimited.Inc()
		return dErrors.New(dErrors.CodeRateLimited, "telemetry rate limit exceeded")
	}
	return nil
}

func (i *Ingestor) prepare(ctx context.Context, event *MonitoringEvent) {
	if event.EmittedAt.IsZero() {
		event.EmittedAt = requestcontext.Now(ctx)
	}
	if event.Environment == "" {
		event.Environment = DescribeEnvironment(requestcontext.UserAgent(ctx))
	}
}

func (i *Ingestor) push(it item, kind string) {
	if i.buffer.enqueue(it) {
		eventsDropped.WithLabelValues("overflow").Inc()
		i.logger.Warn("telemetry queue overflow, oldest item dropped")
	}
	eventsAccepted.WithLabelValues(kind).Inc()

	select {
	case i.notify <- struct{}{}:
	default:
	}
}

// Run drains the queue until ctx is cancelled. A single dispatcher goroutine
// keeps per-subject FIFO order, which the classifier's escalation counting
// depends on.
func (i *Ingestor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			i.drain(ctx)
			return ctx.Err()
		case <-i.notify:
			i.drain(ctx)
		}
	}
}

func (i *Ingestor) drain(ctx context.Context) {
	for {
		batch := i.buffer.dequeueBatch(dispatchBatchSize)
		if len(batch) == 0 {
			return
		}
		for _, it := range batch {
			i.forward(ctx, it)
		}
	}
}

// forward classifies (violations only) and publishes one item. Failures are
// logged and the item dropped: telemetry is not a durable ledger.
func (i *Ingestor) forward(ctx context.Context, it item) {
	var (
		kind  string
		key   string
		value any
	)
	switch {
	case it.violation != nil:
		classified := ClassifiedViolation{
			Violation: *it.violation,
			Decision:  i.classifier.Classify(*it.violation),
		}
		i.hooks.OnDecision(ctx, classified)
		kind, key, value = "violation", it.violation.StudentID.String(), classified
	case it.monitoring != nil:
		kind, key, value = "monitoring", it.monitoring.StudentID.String(), *it.monitoring
	default:
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		eventsDropped.WithLabelValues("encode").Inc()
		i.logger.Error("telemetry item dropped, encode failed", "error", err, "kind", kind)
		return
	}
	record := sink.Record{Kind: kind, Key: key, Value: raw}
	for _, s := range i.sinks {
		if err := s.Publish(ctx, record); err != nil {
			eventsDropped.WithLabelValues("delivery").Inc()
			i.logger.Warn("telemetry item dropped by sink",
				"error", err,
				"kind", kind,
				"subject", key,
			)
		}
	}
}

// QueueDepth reports the current ingest queue length (for health/metrics).
func (i *Ingestor) QueueDepth() int {
	return i.buffer.len()
}
