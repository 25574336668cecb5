package outbox_relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/escrow-settlement/internal/domain/outbox"
	"github.com/escrow-settlement/internal/platform/messaging/producers"
	"github.com/escrow-settlement/internal/platform/metrics"
)

// EventPublisher relays one outbox message to the broker
type EventPublisher interface {
	PublishEvent(ctx context.Context, message *outbox.Message) error
}

// ErrUndecodablePayload marks a message that can never be published
type ErrUndecodablePayload struct {
	ID  int64
	Err error
}

func (e ErrUndecodablePayload) Error() string {
	return fmt.Sprintf("outbox message %d has an undecodable payload: %v", e.ID, e.Err)
}

func (e ErrUndecodablePayload) Unwrap() error {
	return e.Err
}

// KafkaEventPublisher implements EventPublisher on the events topic
type KafkaEventPublisher struct {
	outboxRepo outbox.Repository
	producer   producers.EventPublisher
	logger     *slog.Logger
}

// NewKafkaEventPublisher creates a new publisher
func NewKafkaEventPublisher(
	outboxRepo outbox.Repository,
	producer producers.EventPublisher,
	logger *slog.Logger,
) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		outboxRepo: outboxRepo,
		producer:   producer,
		logger:     logger,
	}
}

// PublishEvent sends the message keyed by its txRef and marks it processed.
// A payload that does not decode is marked FAILED_TO_PUBLISH straight away.
func (p *KafkaEventPublisher) PublishEvent(ctx context.Context, message *outbox.Message) error {
	event, err := message.Event()
	if err != nil {
		p.logger.Error("Failed to decode escrow event from outbox payload",
			"outbox_id", message.ID, "tx_ref", message.TxRef, "error", err,
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, outbox.StatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to mark outbox message FAILED_TO_PUBLISH", "outbox_id", message.ID, "update_error", updateErr)
		}
		metrics.OutboxMessagesTotal.WithLabelValues("undecodable").Inc()
		return ErrUndecodablePayload{ID: message.ID, Err: err}
	}

	logger := p.logger
	if event.CorrelationID != "" {
		logger = p.logger.With("correlation_id", event.CorrelationID)
	}

	if err := p.producer.Publish(ctx, message.TxRef, message.Payload, string(message.EventType)); err != nil {
		metrics.OutboxMessagesTotal.WithLabelValues("publish_error").Inc()
		return fmt.Errorf("failed to publish outbox message %d: %w", message.ID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, outbox.StatusProcessed); err != nil {
		logger.Error("Failed to mark outbox message PROCESSED",
			"outbox_id", message.ID, "tx_ref", message.TxRef, "error", err,
		)
		return fmt.Errorf("event for %s published, but failed to mark outbox %d as PROCESSED: %w", message.TxRef, message.ID, err)
	}

	metrics.OutboxMessagesTotal.WithLabelValues("published").Inc()
	logger.Info("Escrow event published",
		"outbox_id", message.ID,
		"tx_ref", message.TxRef,
		"event_type", string(message.EventType),
	)
	return nil
}
