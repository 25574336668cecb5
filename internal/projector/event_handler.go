package projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/escrow-settlement/internal/domain/escrow"
	"github.com/escrow-settlement/internal/platform/messaging/producers"
	"github.com/escrow-settlement/internal/platform/metrics"
)

// EventHandler handles escrow lifecycle messages from Kafka
type EventHandler struct {
	projector ProjectionService
	producer  producers.DeadLetterPublisher
	logger    *slog.Logger
}

// NewEventHandler creates a new handler
func NewEventHandler(
	logger *slog.Logger,
	projector ProjectionService,
	producer producers.DeadLetterPublisher,
) *EventHandler {
	return &EventHandler{
		projector: projector,
		producer:  producer,
		logger:    logger,
	}
}

// HandleMessage processes Kafka messages. A nil return commits the offset.
func (h *EventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var event escrow.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return h.reject(ctx, key, value, "Failed to unmarshal escrow event from Kafka message", err)
	}
	if event.TxRef == "" || event.Type == "" {
		return h.reject(ctx, key, value, "Escrow event is missing tx_ref or type", errors.New("incomplete event"))
	}

	logger := h.logger
	if event.CorrelationID != "" {
		logger = h.logger.With("correlation_id", event.CorrelationID)
	}

	if err := h.projector.Project(ctx, &event); err != nil {
		logger.Error("Failed to project escrow event",
			"event_id", event.ID.String(),
			"tx_ref", event.TxRef,
			"type", string(event.Type),
			"error", err,
		)
		return fmt.Errorf("projecting event %s failed: %w", event.ID.String(), err)
	}

	logger.Info("Projected escrow event",
		"event_id", event.ID.String(),
		"tx_ref", event.TxRef,
		"type", string(event.Type),
		"version", event.Version,
	)
	return nil
}

// reject moves an unprocessable message to the dead letter topic. Without a
// dead letter topic the message is dropped, since redelivery cannot fix it.
// A failed dead letter write is returned so the message is retried.
func (h *EventHandler) reject(ctx context.Context, key, value []byte, msg string, cause error) error {
	h.logger.Error(msg, "error", cause, "message_key", string(key))
	metrics.ProjectedEventsTotal.WithLabelValues("rejected").Inc()

	if h.producer == nil {
		return nil
	}

	reason := fmt.Sprintf("%s: %s", msg, cause.Error())
	if err := h.producer.PublishToDLQ(ctx, string(key), value, reason); err != nil {
		if errors.Is(err, producers.ErrDLQDisabled) {
			h.logger.Warn("Dead letter topic disabled, dropping message", "message_key", string(key))
			return nil
		}
		h.logger.Error("Failed to publish message to DLQ",
			"dlq_error", err,
			"original_error", cause,
			"message_key", string(key),
		)
		return fmt.Errorf("failed to dead-letter message: %w", cause)
	}

	h.logger.Info("Published unprocessable message to DLQ", "message_key", string(key), "reason", reason)
	return nil
}
