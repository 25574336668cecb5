package service

import (
	"context"

	"github.com/escrow-settlement/internal/domain/escrow"
	"github.com/escrow-settlement/internal/domain/timeline"
	"github.com/escrow-settlement/internal/statemachine"
)

// EscrowService defines the escrow operations exposed over HTTP.
// *statemachine.Service implements it.
type EscrowService interface {
	// Initialize records a pending transaction and opens a payment session.
	// Returns *escrow.ValidationError for bad input and *escrow.GatewayError
	// when the processor call fails.
	Initialize(ctx context.Context, req statemachine.InitializeRequest) (*statemachine.InitializeResult, error)

	// ApplyWebhook authenticates and applies a capture notification.
	// Returns *escrow.AuthenticationError or *escrow.NotFoundError.
	ApplyWebhook(ctx context.Context, signature string, body []byte) (*escrow.Transaction, error)

	GetTransaction(ctx context.Context, txRef string) (*escrow.Transaction, error)
	GetPayeeTransactions(ctx context.Context, payeeID string) (*statemachine.PayeeView, error)
}

// TimelineService defines the read operations on projected lifecycle events
type TimelineService interface {
	// GetTransactionEvents retrieves a page of a transaction's events, oldest first.
	// Returns entries, total count of all events, and any error
	GetTransactionEvents(ctx context.Context, txRef string, page, perPage int) ([]*timeline.Entry, int64, error)
}
