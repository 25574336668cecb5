package projector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/escrow-settlement/internal/domain/escrow"
	"github.com/panjf2000/ants/v2"
)

// WorkerPoolProjector bounds the number of concurrent projections
type WorkerPoolProjector struct {
	base   ProjectionService
	pool   *ants.Pool
	logger *slog.Logger
}

func NewWorkerPoolProjector(base ProjectionService, size int, logger *slog.Logger) (*WorkerPoolProjector, error) {
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create projection worker pool: %w", err)
	}

	return &WorkerPoolProjector{
		base:   base,
		pool:   pool,
		logger: logger,
	}, nil
}

// Project runs the projection on a pool worker and waits for its result.
func (s *WorkerPoolProjector) Project(ctx context.Context, event *escrow.Event) error {
	resultChan := make(chan error, 1)
	eventCopy := *event

	err := s.pool.Submit(func() {
		resultChan <- s.base.Project(ctx, &eventCopy)
	})
	if err != nil {
		s.logger.Error("Failed to submit event to worker pool",
			"event_id", event.ID.String(),
			"tx_ref", event.TxRef,
			"error", err,
		)
		return err
	}

	select {
	case err := <-resultChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown gracefully shuts down the worker pool.
func (s *WorkerPoolProjector) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

func (s *WorkerPoolProjector) Running() int {
	return s.pool.Running()
}

func (s *WorkerPoolProjector) Capacity() int {
	return s.pool.Cap()
}
