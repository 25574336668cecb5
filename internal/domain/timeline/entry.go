package timeline

import (
	"time"

	"github.com/escrow-settlement/internal/domain/escrow"
)

// Entry is one projected lifecycle event of an escrow transaction
type Entry struct {
	EventID           string                `json:"event_id" bson:"event_id"`
	Type              escrow.EventType      `json:"type" bson:"type"`
	TransactionID     string                `json:"transaction_id" bson:"transaction_id"`
	TxRef             string                `json:"tx_ref" bson:"tx_ref"`
	PayeeID           string                `json:"payee_id" bson:"payee_id"`
	Amount            int64                 `json:"amount" bson:"amount"`
	Currency          string                `json:"currency" bson:"currency"`
	Status            escrow.Status         `json:"status" bson:"status"`
	PaymentStatus     escrow.PaymentStatus  `json:"payment_status" bson:"payment_status"`
	TransferStatus    escrow.TransferStatus `json:"transfer_status" bson:"transfer_status"`
	BalanceType       escrow.BalanceType    `json:"balance_type" bson:"balance_type"`
	HoldUntil         time.Time             `json:"hold_until" bson:"hold_until"`
	TransferReference string                `json:"transfer_reference,omitempty" bson:"transfer_reference,omitempty"`
	TransferAttempts  int                   `json:"transfer_attempts" bson:"transfer_attempts"`
	FailureReason     string                `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	Version           int                   `json:"version" bson:"version"`
	CorrelationID     string                `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	OccurredAt        time.Time             `json:"occurred_at" bson:"occurred_at"`
	RecordedAt        time.Time             `json:"recorded_at" bson:"recorded_at"`
}

// FromEvent builds the timeline entry for an escrow event
func FromEvent(event *escrow.Event, recordedAt time.Time) *Entry {
	return &Entry{
		EventID:           event.ID.String(),
		Type:              event.Type,
		TransactionID:     event.TransactionID.String(),
		TxRef:             event.TxRef,
		PayeeID:           event.PayeeID,
		Amount:            event.Amount,
		Currency:          event.Currency,
		Status:            event.Status,
		PaymentStatus:     event.PaymentStatus,
		TransferStatus:    event.TransferStatus,
		BalanceType:       event.BalanceType,
		HoldUntil:         event.HoldUntil,
		TransferReference: event.TransferReference,
		TransferAttempts:  event.TransferAttempts,
		FailureReason:     event.FailureReason,
		Version:           event.Version,
		CorrelationID:     event.CorrelationID,
		OccurredAt:        event.OccurredAt,
		RecordedAt:        recordedAt,
	}
}
