// internal/audit/trail.go
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// DroppedEvent records an event that was discarded before it reached the
// ledger, with enough identity for later audit. Every discarded event is
// recorded; nothing silently succeeds.
type DroppedEvent struct {
	Provider        string          `json:"provider"`
	ExternalEventID string          `json:"externalEventId"`
	ExternalTxID    string          `json:"externalTxId,omitempty"`
	Reason          string          `json:"reason"` // normalization | out_of_order | duplicate | limit_exceeded
	Detail          string          `json:"detail,omitempty"`
	RawPayload      json.RawMessage `json:"rawPayload,omitempty"`
	DroppedAt       time.Time       `json:"droppedAt"`
}

// Trail records discarded events. The Kafka implementation publishes to a
// dead-letter-style topic whose consumer indexes them for audit search.
type Trail interface {
	Record(ctx context.Context, ev DroppedEvent)
}

// KafkaTrail publishes dropped events to the audit topic, keyed by external
// transaction id so repeated drops of the same transaction co-locate.
type KafkaTrail struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaTrail creates a trail writing to the given brokers and topic.
func NewKafkaTrail(brokers []string, topic string, logger *slog.Logger) *KafkaTrail {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &KafkaTrail{writer: writer, logger: logger}
}

// Record publishes the dropped event. Audit publication is best-effort
// relative to the webhook response path; failures are logged, never returned.
func (t *KafkaTrail) Record(ctx context.Context, ev DroppedEvent) {
	if ev.DroppedAt.IsZero() {
		ev.DroppedAt = time.Now().UTC()
	}
	key := ev.ExternalTxID
	if key == "" {
		key = ev.ExternalEventID
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		t.logger.Error("failed to marshal dropped event", "provider", ev.Provider, "error", err)
		return
	}
	if err := t.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload}); err != nil {
		t.logger.Error("failed to publish dropped event",
			"provider", ev.Provider, "external_event_id", ev.ExternalEventID, "error", err)
	}
}

// Close closes the underlying Kafka writer.
func (t *KafkaTrail) Close() error {
	if t.writer != nil {
		return t.writer.Close()
	}
	return nil
}
