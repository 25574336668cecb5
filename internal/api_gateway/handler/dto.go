package handler

import (
	"time"

	"github.com/escrow-settlement/internal/domain/escrow"
	"github.com/escrow-settlement/internal/domain/timeline"
)

// InitializePaymentRequest represents a request to open an escrow payment
type InitializePaymentRequest struct {
	Amount                 int64  `json:"amount" binding:"required,gt=0"`
	ClientEmail            string `json:"clientEmail" binding:"required,email"`
	ClientName             string `json:"clientName" binding:"required"`
	ClientPhone            string `json:"clientPhone" binding:"required"`
	PayeeID                string `json:"payeeId" binding:"required"`
	PayeeExternalAccountID string `json:"payeeExternalAccountId" binding:"required"`
}

// PaymentResponse is the hosted payment session returned by the processor
type PaymentResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Link    string `json:"link"`
}

// InitializePaymentResponse represents an opened escrow payment in API responses
type InitializePaymentResponse struct {
	TxRef   string          `json:"tx_ref"`
	Payment PaymentResponse `json:"payment"`
}

// WebhookResponse acknowledges a processed webhook
type WebhookResponse struct {
	TxRef  string `json:"tx_ref"`
	Status string `json:"status"`
}

// TransactionResponse represents an escrow transaction in API responses
type TransactionResponse struct {
	TxRef             string `json:"tx_ref"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	PayeeID           string `json:"payee_id"`
	ClientName        string `json:"client_name"`
	ClientEmail       string `json:"client_email"`
	Status            string `json:"status"`
	PaymentStatus     string `json:"payment_status"`
	TransferStatus    string `json:"transfer_status"`
	BalanceType       string `json:"balance_type"`
	HoldUntil         string `json:"hold_until"`
	TransferReference string `json:"transfer_reference,omitempty"`
	TransferAttempts  int    `json:"transfer_attempts"`
	FailureReason     string `json:"failure_reason,omitempty"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

// PayeeTransactionsResponse lists a payee's transactions with their balances
type PayeeTransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	Balances     escrow.Balances       `json:"balances"`
}

// TimelineEventResponse represents one projected lifecycle event
type TimelineEventResponse struct {
	EventID        string `json:"event_id"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	PaymentStatus  string `json:"payment_status"`
	TransferStatus string `json:"transfer_status"`
	BalanceType    string `json:"balance_type"`
	Version        int    `json:"version"`
	FailureReason  string `json:"failure_reason,omitempty"`
	CorrelationID  string `json:"correlation_id,omitempty"`
	OccurredAt     string `json:"occurred_at"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=50" binding:"min=1,max=100"`
}

// mapTransactionToResponse maps an escrow transaction to a response DTO
func mapTransactionToResponse(t *escrow.Transaction) TransactionResponse {
	return TransactionResponse{
		TxRef:             t.TxRef,
		Amount:            t.Amount,
		Currency:          t.Currency,
		PayeeID:           t.Payee.ID,
		ClientName:        t.Client.Name,
		ClientEmail:       t.Client.Email,
		Status:            string(t.Status),
		PaymentStatus:     string(t.PaymentStatus),
		TransferStatus:    string(t.TransferStatus),
		BalanceType:       string(t.BalanceType),
		HoldUntil:         t.HoldUntil.Format(time.RFC3339),
		TransferReference: t.TransferReference,
		TransferAttempts:  t.TransferAttempts,
		FailureReason:     t.FailureReason,
		CreatedAt:         t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         t.UpdatedAt.Format(time.RFC3339),
	}
}

func mapTimelineEntryToResponse(e *timeline.Entry) TimelineEventResponse {
	return TimelineEventResponse{
		EventID:        e.EventID,
		Type:           string(e.Type),
		Status:         string(e.Status),
		PaymentStatus:  string(e.PaymentStatus),
		TransferStatus: string(e.TransferStatus),
		BalanceType:    string(e.BalanceType),
		Version:        e.Version,
		FailureReason:  e.FailureReason,
		CorrelationID:  e.CorrelationID,
		OccurredAt:     e.OccurredAt.Format(time.RFC3339),
	}
}
