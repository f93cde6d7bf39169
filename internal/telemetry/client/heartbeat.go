package client

import (
	"context"
	"log/slog"
	"time"
)

// HeartbeatRunner emits a liveness signal on a fixed cadence for the
// lifetime of one exam view. Run blocks until ctx is cancelled and the
// ticker is released on every exit path - a heartbeat that outlives its
// exam session is a defect, not a trade-off.
type HeartbeatRunner struct {
	cadence time.Duration
	send    func(ctx context.Context) error
	logger  *slog.Logger
}

// NewHeartbeatRunner constructs a runner; send is invoked once per cadence
// tick and once immediately at start.
func NewHeartbeatRunner(cadence time.Duration, send func(ctx context.Context) error, logger *slog.Logger) *HeartbeatRunner {
	return &HeartbeatRunner{cadence: cadence, send: send, logger: logger}
}

// Run drives the heartbeat loop. Send failures are logged and the loop
// continues: a missed heartbeat degrades liveness detection, it must never
// tear down the exam.
func (r *HeartbeatRunner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cadence)
	defer ticker.Stop()

	if err := r.send(ctx); err != nil {
		r.logger.Warn("heartbeat send failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.send(ctx); err != nil {
				r.logger.Warn("heartbeat send failed", "error", err)
			}
		}
	}
}
