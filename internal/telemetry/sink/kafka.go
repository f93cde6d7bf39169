package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink streams telemetry records to a Kafka topic for archival and
// offline analytics. Produces are fire-and-forget: a delivery failure is
// logged by the callback and the record dropped, keeping the dispatcher
// decoupled from broker health.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaSink constructs a sink producing to the given topic.
// Record keys are subject ids, so per-subject order survives partitioning.
func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &KafkaSink{client: client, topic: topic, logger: logger}, nil
}

// Publish hands the record to the producer and returns immediately.
func (s *KafkaSink) Publish(ctx context.Context, record Record) error {
	kr := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(record.Key),
		Value: record.Value,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(record.Kind)},
		},
	}
	s.client.Produce(ctx, kr, func(r *kgo.Record, err error) {
		if err != nil {
			s.logger.Warn("telemetry record dropped by kafka sink",
				"error", err,
				"kind", record.Kind,
				"key", record.Key,
			)
		}
	})
	return nil
}

// Close flushes outstanding produces and releases the client.
func (s *KafkaSink) Close() {
	_ = s.client.Flush(context.Background())
	s.client.Close()
}
