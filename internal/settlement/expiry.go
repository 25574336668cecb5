package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/escrow-settlement/internal/config"
	"github.com/escrow-settlement/internal/domain/escrow"
	"github.com/escrow-settlement/internal/logger"
	"github.com/escrow-settlement/internal/platform/metrics"
)

// Expirer fails pending transactions whose payment was never completed
type Expirer struct {
	repo       escrow.Repository
	machine    Transitioner
	interval   time.Duration
	runOnStart bool
	after      time.Duration
	batchSize  int
	logger     *slog.Logger
	now        func() time.Time
}

// NewExpirer creates the pending-expiry sweep
func NewExpirer(logger *slog.Logger, repo escrow.Repository, machine Transitioner, cfg *config.SettlementConfig) *Expirer {
	return &Expirer{
		repo:       repo,
		machine:    machine,
		interval:   cfg.PendingExpiryInterval,
		runOnStart: cfg.RunOnStart,
		after:      cfg.PendingExpiryAfter,
		batchSize:  cfg.BatchSize,
		logger:     logger,
		now:        time.Now,
	}
}

// RunOnce expires one batch and returns how many records it failed
func (e *Expirer) RunOnce(ctx context.Context) (int, error) {
	runID := uuid.NewString()
	ctx = logger.WithCorrelationID(ctx, runID)
	log := e.logger.With("run_id", runID)

	cutoff := e.now().UTC().Add(-e.after)
	transactions, err := e.repo.ListExpiredPending(ctx, cutoff, e.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to select expired pending transactions: %w", err)
	}

	expired := 0
	for _, t := range transactions {
		if ctx.Err() != nil {
			break
		}
		if err := e.machine.Expire(ctx, t); err != nil {
			var invalid *escrow.ErrInvalidTransition
			if errors.Is(err, escrow.ErrConcurrentModification{}) || errors.As(err, &invalid) {
				log.Info("Pending transaction changed before expiry", "tx_ref", t.TxRef)
				continue
			}
			log.Error("Failed to expire pending transaction", "tx_ref", t.TxRef, "error", err)
			continue
		}
		expired++
		metrics.ExpiredTransactionsTotal.Inc()
	}

	if len(transactions) > 0 {
		log.Info("Pending expiry sweep finished", "selected", len(transactions), "expired", expired, "cutoff", cutoff)
	}
	return expired, nil
}
