package escrow

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a lifecycle transition
type EventType string

const (
	EventInitialized        EventType = "transaction.initialized"
	EventHeld               EventType = "transaction.held"
	EventPaymentFailed      EventType = "transaction.payment_failed"
	EventTransferProcessing EventType = "transaction.transfer_processing"
	EventCompleted          EventType = "transaction.completed"
	EventTransferFailed     EventType = "transaction.transfer_failed"
	EventExpired            EventType = "transaction.expired"
	EventLateCapture        EventType = "transaction.late_capture"
)

// Event is a snapshot of a transaction taken right after a transition.
// It is what the outbox stores and what goes out on the events topic.
type Event struct {
	ID                    uuid.UUID      `json:"event_id"`
	Type                  EventType      `json:"type"`
	TransactionID         uuid.UUID      `json:"transaction_id"`
	TxRef                 string         `json:"tx_ref"`
	PayeeID               string         `json:"payee_id"`
	Amount                int64          `json:"amount"`
	Currency              string         `json:"currency"`
	Status                Status         `json:"status"`
	PaymentStatus         PaymentStatus  `json:"payment_status"`
	TransferStatus        TransferStatus `json:"transfer_status"`
	BalanceType           BalanceType    `json:"balance_type"`
	HoldUntil             time.Time      `json:"hold_until"`
	TransferReference     string         `json:"transfer_reference,omitempty"`
	ExternalTransactionID string         `json:"external_transaction_id,omitempty"`
	TransferAttempts      int            `json:"transfer_attempts"`
	FailureReason         string         `json:"failure_reason,omitempty"`
	Version               int            `json:"version"`
	CorrelationID         string         `json:"correlation_id,omitempty"`
	OccurredAt            time.Time      `json:"occurred_at"`
}

// NewEvent captures the current state of t under the given event type
func NewEvent(eventType EventType, t *Transaction, correlationID string) *Event {
	return &Event{
		ID:                    uuid.New(),
		Type:                  eventType,
		TransactionID:         t.ID,
		TxRef:                 t.TxRef,
		PayeeID:               t.Payee.ID,
		Amount:                t.Amount,
		Currency:              t.Currency,
		Status:                t.Status,
		PaymentStatus:         t.PaymentStatus,
		TransferStatus:        t.TransferStatus,
		BalanceType:           t.BalanceType,
		HoldUntil:             t.HoldUntil,
		TransferReference:     t.TransferReference,
		ExternalTransactionID: t.ExternalTransactionID,
		TransferAttempts:      t.TransferAttempts,
		FailureReason:         t.FailureReason,
		Version:               t.Version,
		CorrelationID:         correlationID,
		OccurredAt:            t.UpdatedAt,
	}
}
