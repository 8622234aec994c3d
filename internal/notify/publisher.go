package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"immigo/internal/impact"
	"immigo/internal/platform/config"
	id "immigo/pkg/domain"
	"immigo/pkg/requestcontext"
)

// Notifier is the delivery collaborator. It receives gated notifications and
// owns the actual channel (push, email, downstream consumers).
type Notifier interface {
	Publish(ctx context.Context, n Notification) error
}

// KafkaPublisher emits notifications to a Kafka topic, keyed by user ID so a
// user's notifications stay ordered within a partition. Downstream delivery
// services consume from there.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher connects a producer for the configured topic.
func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher: at least one broker is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: %w", err)
	}
	return &KafkaPublisher{client: client, topic: cfg.Topic}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(n.UserID.String()),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce notification for %s: %w", n.UserID, err)
	}
	return nil
}

// Close flushes and shuts down the producer.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// LogNotifier is the dev-mode Notifier: it just logs what would have been
// delivered. Useful locally and in tests when no broker is running.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Publish(ctx context.Context, notification Notification) error {
	n.logger.InfoContext(ctx, "notification gated through",
		"user_id", notification.UserID,
		"policy_key", notification.Impact.Delta.Key.String(),
		"severity", notification.Impact.Severity,
		"action", notification.Impact.Action,
	)
	return nil
}

// NewNotification stamps a delivery-ready record for a gated impact.
func NewNotification(ctx context.Context, userID id.UserID, imp impact.Result) Notification {
	return Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Impact:    imp,
		CreatedAt: requestcontext.Now(ctx),
	}
}
