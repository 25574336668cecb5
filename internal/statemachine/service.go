// Package statemachine drives escrow transactions through their lifecycle: payment
// initialization, webhook-driven capture, payout transitions and expiry.
// Every transition is a conditional update paired with an outbox event.
package statemachine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/escrow-settlement/internal/config"
	"github.com/escrow-settlement/internal/domain/escrow"
	"github.com/escrow-settlement/internal/domain/outbox"
	"github.com/escrow-settlement/internal/logger"
	"github.com/escrow-settlement/internal/platform/gateway"
	"github.com/escrow-settlement/internal/platform/persistence"
)

// InitializeRequest is the client input for opening an escrow payment
type InitializeRequest struct {
	Amount int64
	Client escrow.Client
	Payee  escrow.Payee
}

// InitializeResult pairs the new reference with the hosted payment session
type InitializeResult struct {
	TxRef   string
	Payment *gateway.PaymentSession
}

// PayeeView is a payee's transaction list with its current balances
type PayeeView struct {
	Transactions []*escrow.Transaction
	Balances     escrow.Balances
}

// Service is the escrow state machine
type Service struct {
	db         persistence.Transactor
	repo       escrow.Repository
	outboxRepo outbox.Repository
	gateway    PaymentGateway
	cfg        config.EscrowConfig
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates the escrow state machine service
func NewService(
	logger *slog.Logger,
	db persistence.Transactor,
	repo escrow.Repository,
	outboxRepo outbox.Repository,
	gw PaymentGateway,
	cfg *config.Config,
) *Service {
	return &Service{
		db:         db,
		repo:       repo,
		outboxRepo: outboxRepo,
		gateway:    gw,
		cfg:        cfg.Escrow,
		maxRetries: cfg.Settlement.MaxTransferAttempts,
		logger:     logger,
		now:        time.Now,
	}
}

// Initialize records a pending transaction and opens a payment session for
// it. A gateway failure leaves the record pending; nothing is undone.
func (s *Service) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	log := logger.FromContext(ctx, s.logger)

	t, err := escrow.NewTransaction(req.Amount, s.cfg.Currency, req.Client, req.Payee, s.cfg.HoldPeriod, s.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := s.record(ctx, t, escrow.EventInitialized, modeCreate); err != nil {
		log.Error("Failed to store new transaction", "tx_ref", t.TxRef, "error", err)
		return nil, err
	}

	session, err := s.gateway.InitializePayment(ctx, gateway.PaymentRequest{
		TxRef:    t.TxRef,
		Amount:   t.Amount,
		Currency: t.Currency,
		Customer: gateway.Customer{
			Email:       t.Client.Email,
			PhoneNumber: t.Client.Phone,
			Name:        t.Client.Name,
		},
	})
	if err != nil {
		log.Error("Payment initialization failed", "tx_ref", t.TxRef, "error", err)
		return nil, &escrow.GatewayError{Op: "initialize", TxRef: t.TxRef, Err: err}
	}

	log.Info("Payment initialized",
		"tx_ref", t.TxRef,
		"payee_id", t.Payee.ID,
		"amount", t.Amount,
		"currency", t.Currency,
	)

	return &InitializeResult{TxRef: t.TxRef, Payment: session}, nil
}

// BeginTransfer marks a settleable transaction as having a payout in flight.
// A lost version race comes back as escrow.ErrConcurrentModification.
func (s *Service) BeginTransfer(ctx context.Context, t *escrow.Transaction) error {
	if err := t.BeginTransfer(s.now().UTC()); err != nil {
		return err
	}
	return s.record(ctx, t, escrow.EventTransferProcessing, modeUpdate)
}

// ApplyTransferOutcome settles t on success. On failure the transaction stays
// held for the next sweep until the attempt cap is reached.
func (s *Service) ApplyTransferOutcome(ctx context.Context, t *escrow.Transaction, success bool, reference string) error {
	now := s.now().UTC()

	if success {
		if err := t.CompleteTransfer(reference, now); err != nil {
			return err
		}
		return s.record(ctx, t, escrow.EventCompleted, modeUpdate)
	}

	if err := t.FailTransfer(s.maxRetries, now); err != nil {
		return err
	}
	if t.Status == escrow.StatusFailed {
		logger.FromContext(ctx, s.logger).Warn("Transfer retry limit reached",
			"tx_ref", t.TxRef,
			"attempts", t.TransferAttempts,
		)
	}
	return s.record(ctx, t, escrow.EventTransferFailed, modeUpdate)
}

// Expire fails a pending transaction whose payment never completed
func (s *Service) Expire(ctx context.Context, t *escrow.Transaction) error {
	if err := t.Expire(s.now().UTC()); err != nil {
		return err
	}
	return s.record(ctx, t, escrow.EventExpired, modeUpdate)
}

// GetTransaction looks up a transaction by its reference
func (s *Service) GetTransaction(ctx context.Context, txRef string) (*escrow.Transaction, error) {
	if strings.TrimSpace(txRef) == "" {
		return nil, &escrow.ValidationError{Field: "txRef", Reason: "is required"}
	}
	return s.repo.GetByTxRef(ctx, txRef)
}

// GetPayeeTransactions returns the payee's transactions, newest first, with
// balances computed from that same list.
func (s *Service) GetPayeeTransactions(ctx context.Context, payeeID string) (*PayeeView, error) {
	if strings.TrimSpace(payeeID) == "" {
		return nil, &escrow.ValidationError{Field: "payeeId", Reason: "is required"}
	}

	transactions, err := s.repo.ListByPayee(ctx, payeeID)
	if err != nil {
		logger.FromContext(ctx, s.logger).Error("Failed to list payee transactions", "payee_id", payeeID, "error", err)
		return nil, err
	}

	return &PayeeView{
		Transactions: transactions,
		Balances:     escrow.ComputeBalances(transactions),
	}, nil
}

func isConflict(err error) bool {
	return errors.Is(err, escrow.ErrConcurrentModification{})
}
