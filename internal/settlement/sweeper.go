// Package settlement runs the scheduled sweeps over escrow transactions: the
// payout sweep for matured holds and the expiry sweep for abandoned payments.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/escrow-settlement/internal/config"
	"github.com/escrow-settlement/internal/domain/escrow"
	"github.com/escrow-settlement/internal/logger"
	"github.com/escrow-settlement/internal/platform/gateway"
	"github.com/escrow-settlement/internal/platform/lock"
	"github.com/escrow-settlement/internal/platform/metrics"
)

const (
	transferReferencePrefix = "transfer-"
	releaseTimeout          = 5 * time.Second
)

// Summary counts what a single settlement run did
type Summary struct {
	Selected  int
	Completed int
	Failed    int
	Skipped   int
	Errored   int
}

// Sweeper pays out held transactions whose hold period has ended
type Sweeper struct {
	repo      escrow.Repository
	machine   Transitioner
	transfers Transferrer
	acquire   AcquireFunc
	cfg       config.SettlementConfig
	logger    *slog.Logger
	now       func() time.Time
}

// Option customizes a Sweeper
type Option func(*Sweeper)

// WithLease makes every run take the given lock first
func WithLease(acquire AcquireFunc) Option {
	return func(s *Sweeper) {
		s.acquire = acquire
	}
}

// WithClock replaces the time source used to decide which holds have matured
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

// NewSweeper creates a settlement sweeper
func NewSweeper(
	logger *slog.Logger,
	repo escrow.Repository,
	machine Transitioner,
	transfers Transferrer,
	cfg *config.SettlementConfig,
	opts ...Option,
) *Sweeper {
	s := &Sweeper{
		repo:      repo,
		machine:   machine,
		transfers: transfers,
		cfg:       *cfg,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce performs one settlement sweep. Items are processed one at a time;
// a failing item is recorded and the sweep moves on. Cancelling ctx stops the
// sweep before the next item, never in the middle of one.
func (s *Sweeper) RunOnce(ctx context.Context) (Summary, error) {
	var summary Summary
	start := time.Now()

	runID := uuid.NewString()
	ctx = logger.WithCorrelationID(ctx, runID)
	log := s.logger.With("run_id", runID)

	release, err := s.lock(ctx, log)
	if err != nil {
		return summary, err
	}
	defer release()

	now := s.now().UTC()
	transactions, err := s.repo.ListSettleable(ctx, now, s.cfg.MaxTransferAttempts, s.cfg.BatchSize)
	if err != nil {
		metrics.SettlementRunsTotal.WithLabelValues("error").Inc()
		return summary, fmt.Errorf("failed to select settleable transactions: %w", err)
	}
	summary.Selected = len(transactions)

	for i, t := range transactions {
		if ctx.Err() != nil {
			log.Info("Settlement sweep interrupted", "remaining", len(transactions)-i)
			break
		}
		s.settle(ctx, log.With("tx_ref", t.TxRef), t, &summary)
	}

	metrics.SettlementRunsTotal.WithLabelValues("completed").Inc()
	metrics.SettlementRunDuration.Observe(time.Since(start).Seconds())

	log.Info("Settlement sweep finished",
		"selected", summary.Selected,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"errored", summary.Errored,
		"duration", time.Since(start),
	)
	return summary, nil
}

func (s *Sweeper) lock(ctx context.Context, log *slog.Logger) (func(), error) {
	if s.acquire == nil {
		return func() {}, nil
	}

	lease, err := s.acquire(ctx)
	if err != nil {
		metrics.SettlementRunsTotal.WithLabelValues("skipped").Inc()
		if errors.Is(err, lock.ErrNotAcquired) {
			log.Info("Settlement sweep skipped, another worker holds the lease")
		} else {
			log.Error("Settlement sweep skipped, lease unavailable", "error", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrSkipped, err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := lease.Release(ctx); err != nil {
			log.Warn("Failed to release settlement lease", "error", err)
		}
	}, nil
}

// settle runs one payout. Once the attempt is marked as in flight it runs to
// the end even if ctx is cancelled, so the outcome is always recorded.
func (s *Sweeper) settle(ctx context.Context, log *slog.Logger, t *escrow.Transaction, summary *Summary) {
	if err := s.machine.BeginTransfer(ctx, t); err != nil {
		var invalid *escrow.ErrInvalidTransition
		if errors.Is(err, escrow.ErrConcurrentModification{}) || errors.As(err, &invalid) {
			log.Info("Skipping transaction changed since selection", "reason", err.Error())
			summary.Skipped++
			return
		}
		log.Error("Failed to mark transfer as processing", "error", err)
		summary.Errored++
		return
	}

	ctx = context.WithoutCancel(ctx)

	result, err := s.transfers.Transfer(ctx, gateway.TransferRequest{
		MerchantID: t.Payee.ExternalAccountID,
		Amount:     t.Amount,
		Currency:   t.Currency,
		Reference:  transferReferencePrefix + uuid.NewString(),
		Meta: gateway.TransferMeta{
			Email:        t.Client.Email,
			FirstName:    firstName(t.Client.Name),
			MobileNumber: t.Client.Phone,
		},
	})

	success := err == nil
	reference := ""
	if success {
		reference = result.Reference
		metrics.SettlementTransfersTotal.WithLabelValues("success").Inc()
	} else {
		log.Warn("Transfer failed", "attempt", t.TransferAttempts, "error", err)
		metrics.SettlementTransfersTotal.WithLabelValues("failure").Inc()
	}

	if err := s.machine.ApplyTransferOutcome(ctx, t, success, reference); err != nil {
		log.Error("Failed to record transfer outcome",
			"transfer_succeeded", success,
			"transfer_reference", reference,
			"error", err,
		)
		summary.Errored++
		return
	}

	if success {
		log.Info("Transaction settled", "transfer_reference", reference, "amount", t.Amount)
		summary.Completed++
		return
	}
	summary.Failed++
}

func firstName(name string) string {
	if fields := strings.Fields(name); len(fields) > 0 {
		return fields[0]
	}
	return ""
}
