package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cliphub/apiserver/config"
	"go.uber.org/zap"
)

// Topic names for account lifecycle events.
const (
	TopicUserRegistered = "user.registered"
	TopicUserLoggedIn   = "user.logged_in"
	TopicUserLoggedOut  = "user.logged_out"
)

// AccountEvent is the payload published for account lifecycle events.
type AccountEvent struct {
	UserID     int       `json:"user_id"`
	Username   string    `json:"username"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher sends messages to a broker topic or queue.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// Bus publishes account events best-effort: a broker failure is
// logged and never fails the request that triggered the event. A nil
// publisher disables publishing entirely.
type Bus struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewBus constructs a Bus. publisher may be nil.
func NewBus(publisher Publisher, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{publisher: publisher, logger: logger}
}

// NewPublisherFromConfig constructs the configured broker client, or
// nil when event publishing is disabled.
func NewPublisherFromConfig(ctx context.Context, cfg config.MQConfig) (Publisher, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		return NewRabbitMQPublisher(cfg.RabbitMQ)
	case "pubsub":
		return NewPubSubPublisher(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

// Emit publishes an account event on the given topic.
func (b *Bus) Emit(ctx context.Context, topic string, event AccountEvent) {
	if b.publisher == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("marshal account event", zap.String("topic", topic), zap.Error(err))
		return
	}
	if _, err := b.publisher.Publish(ctx, topic, data, map[string]string{"event": topic}); err != nil {
		b.logger.Warn("publish account event failed",
			zap.String("topic", topic),
			zap.Int("user_id", event.UserID),
			zap.Error(err),
		)
	}
}

// Close releases the underlying broker connection.
func (b *Bus) Close() error {
	if b.publisher == nil {
		return nil
	}
	return b.publisher.Close()
}
