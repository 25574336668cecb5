package statemachine

import (
	"context"
	"fmt"

	"github.com/escrow-settlement/internal/domain/escrow"
	"github.com/escrow-settlement/internal/domain/outbox"
	"github.com/escrow-settlement/internal/logger"
	"github.com/jackc/pgx/v5"
)

type writeMode int

const (
	modeCreate writeMode = iota
	modeUpdate
)

// record persists t and the event describing its latest transition in one
// database transaction. Either both are stored or neither is.
func (s *Service) record(ctx context.Context, t *escrow.Transaction, eventType escrow.EventType, mode writeMode) error {
	event := escrow.NewEvent(eventType, t, logger.CorrelationID(ctx))
	message, err := outbox.NewMessage(event)
	if err != nil {
		return fmt.Errorf("failed to build outbox message for %s: %w", t.TxRef, err)
	}

	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		repo := s.repo.WithTx(tx)
		if mode == modeCreate {
			if err := repo.Create(ctx, t); err != nil {
				return err
			}
		} else if err := repo.Update(ctx, t); err != nil {
			return err
		}
		return s.outboxRepo.WithTx(tx).Create(ctx, message)
	})
	if err != nil {
		return err
	}

	logger.FromContext(ctx, s.logger).Info("Escrow transition recorded",
		"tx_ref", t.TxRef,
		"event_type", string(eventType),
		"status", string(t.Status),
		"version", t.Version,
	)
	return nil
}
