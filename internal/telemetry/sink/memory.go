package sink

import (
	"context"
	"sync"
)

// MemorySink collects records in memory. Used by tests and by deployments
// without a Kafka cluster configured.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
	fail    error
}

// NewMemorySink constructs an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// FailWith makes every subsequent Publish return err. Tests use it to
// exercise the log-and-drop path.
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Publish appends the record.
func (s *MemorySink) Publish(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.records = append(s.records, record)
	return nil
}

// Records returns a copy of everything published so far.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Close is a no-op.
func (s *MemorySink) Close() {}
