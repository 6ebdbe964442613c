// internal/notify/notifier.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Kind distinguishes the user-facing events the dispatcher can emit.
type Kind string

const (
	KindPaymentCompleted Kind = "payment.completed"
	KindPaymentFailed    Kind = "payment.failed"
)

// Event is the payload handed to the push fan-out service. Delivery is
// at-least-once; a duplicate notification is an acceptable trade-off against
// losing a user-visible confirmation.
type Event struct {
	ID            string          `json:"id"`
	UserID        int64           `json:"userId"`
	Kind          Kind            `json:"kind"`
	TransactionID string          `json:"transactionId"`
	AssetCode     string          `json:"assetCode"`
	Amount        string          `json:"amount"`
	Reason        string          `json:"reason,omitempty"`
	EmittedAt     time.Time       `json:"emittedAt"`
	Extra         json.RawMessage `json:"extra,omitempty"`
}

// Notifier emits a user-facing event. Implementations must never block or
// fail a ledger transition that has already committed; callers invoke them
// fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// KafkaNotifier publishes notification events to the push fan-out topic,
// keyed by user id so one user's notifications stay ordered per partition.
type KafkaNotifier struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaNotifier creates a notifier writing to the given brokers and topic.
func NewKafkaNotifier(brokers []string, topic string, logger *slog.Logger) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &KafkaNotifier{writer: writer, logger: logger}
}

// Notify publishes the event.
func (n *KafkaNotifier) Notify(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.EmittedAt.IsZero() {
		ev.EmittedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal notification %s: %w", ev.ID, err)
	}
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", ev.UserID)),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification %s: %w", ev.ID, err)
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (n *KafkaNotifier) Close() error {
	if n.writer != nil {
		return n.writer.Close()
	}
	return nil
}
