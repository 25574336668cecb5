package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/escrow-settlement/internal/domain/escrow"
	"github.com/google/uuid"
)

// Status defines message publishing states
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusProcessed       Status = "PROCESSED"
	StatusFailedToPublish Status = "FAILED_TO_PUBLISH"
)

// Message is an escrow lifecycle event waiting to be relayed to the broker.
// It is written in the same database transaction as the state change it
// describes.
type Message struct {
	ID            int64            `json:"id"`
	EventID       uuid.UUID        `json:"event_id"`
	TransactionID uuid.UUID        `json:"transaction_id"`
	TxRef         string           `json:"tx_ref"`
	EventType     escrow.EventType `json:"event_type"`
	Payload       json.RawMessage  `json:"payload"`
	Status        Status           `json:"status"`
	Attempts      int              `json:"attempts"`
	CreatedAt     time.Time        `json:"created_at"`
	LastAttemptAt *time.Time       `json:"last_attempt_at,omitempty"`
}

// NewMessage serializes event into a pending outbox message
func NewMessage(event *escrow.Event) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}

	return &Message{
		EventID:       event.ID,
		TransactionID: event.TransactionID,
		TxRef:         event.TxRef,
		EventType:     event.Type,
		Payload:       payload,
		Status:        StatusPending,
		CreatedAt:     event.OccurredAt,
	}, nil
}

func (m *Message) IncrementAttempts(now time.Time) {
	m.Attempts++
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsProcessed(now time.Time) {
	m.Status = StatusProcessed
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed(now time.Time) {
	m.Status = StatusFailedToPublish
	m.LastAttemptAt = &now
}

// Event decodes the escrow event carried in the payload
func (m *Message) Event() (*escrow.Event, error) {
	var event escrow.Event
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
