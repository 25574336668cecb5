package producers

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// EventPublisher publishes serialized escrow lifecycle events
type EventPublisher interface {
	Publish(ctx context.Context, key string, value []byte, eventType string) error
	Close() error
}

// DeadLetterPublisher handles publishing messages to a Dead Letter Queue
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
