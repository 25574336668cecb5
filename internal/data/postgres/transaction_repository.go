// Package postgres provides PostgreSQL implementations of the domain repositories.
// Every state change is a conditional update on the previous version so that
// concurrent webhook deliveries and settlement sweeps cannot lose updates.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/escrow-settlement/internal/domain/escrow"
	"github.com/escrow-settlement/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const txRefConstraint = "escrow_transactions_tx_ref_key"

const selectTransaction = `
		SELECT id, tx_ref, amount, currency, client_name, client_email, client_phone,
			payee_id, payee_external_account_id, status, payment_status, transfer_status, balance_type,
			hold_until, COALESCE(transfer_reference, ''), COALESCE(external_transaction_id, ''),
			transfer_attempts, COALESCE(failure_reason, ''), version, created_at, updated_at
		FROM escrow_transactions`

const insertTransactionQuery = `
		INSERT INTO escrow_transactions (id, tx_ref, amount, currency, client_name, client_email, client_phone,
			payee_id, payee_external_account_id, status, payment_status, transfer_status, balance_type,
			hold_until, transfer_reference, external_transaction_id, transfer_attempts, failure_reason,
			version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

const updateTransactionQuery = `
		UPDATE escrow_transactions
		SET status = $1, payment_status = $2, transfer_status = $3, balance_type = $4, hold_until = $5,
			transfer_reference = $6, external_transaction_id = $7, transfer_attempts = $8, failure_reason = $9,
			version = $10, updated_at = $11
		WHERE id = $12 AND version = $13
	`

const (
	getByIDQuery    = selectTransaction + ` WHERE id = $1`
	getByTxRefQuery = selectTransaction + ` WHERE tx_ref = $1`

	listByPayeeQuery = selectTransaction + `
		WHERE payee_id = $1
		ORDER BY created_at DESC`

	listSettleableQuery = selectTransaction + `
		WHERE status = $1 AND balance_type = $2 AND hold_until <= $3
			AND transfer_status IN ($4, $5) AND transfer_attempts < $6
		ORDER BY hold_until ASC
		LIMIT $7`

	listExpiredPendingQuery = selectTransaction + `
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3`
)

// TransactionRepository implements the escrow.Repository interface for PostgreSQL
type TransactionRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewTransactionRepository creates a new PostgreSQL escrow transaction repository
func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) escrow.Repository {
	return &TransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx so that the caller can combine the
// transaction update with other writes, such as outbox messages.
func (r *TransactionRepository) WithTx(tx pgx.Tx) escrow.Repository {
	return &TransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new transaction. A reused txRef yields ErrDuplicateTxRef.
func (r *TransactionRepository) Create(ctx context.Context, t *escrow.Transaction) error {
	_, err := r.querier.Exec(ctx, insertTransactionQuery,
		t.ID,
		t.TxRef,
		t.Amount,
		t.Currency,
		t.Client.Name,
		t.Client.Email,
		t.Client.Phone,
		t.Payee.ID,
		t.Payee.ExternalAccountID,
		t.Status,
		t.PaymentStatus,
		t.TransferStatus,
		t.BalanceType,
		t.HoldUntil,
		nullIfEmpty(t.TransferReference),
		nullIfEmpty(t.ExternalTransactionID),
		t.TransferAttempts,
		nullIfEmpty(t.FailureReason),
		t.Version,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		if constraint, ok := persistence.UniqueViolation(err); ok && constraint == txRefConstraint {
			return escrow.ErrDuplicateTxRef{TxRef: t.TxRef}
		}
		r.logger.Error("Failed to create escrow transaction", "tx_ref", t.TxRef, "error", err)
		return fmt.Errorf("failed to create escrow transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a transaction by its ID
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*escrow.Transaction, error) {
	t, err := scanTransaction(r.querier.QueryRow(ctx, getByIDQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &escrow.NotFoundError{TxRef: id.String()}
		}
		r.logger.Error("Failed to get escrow transaction", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get escrow transaction: %w", err)
	}
	return t, nil
}

// GetByTxRef retrieves a transaction by its client-visible reference
func (r *TransactionRepository) GetByTxRef(ctx context.Context, txRef string) (*escrow.Transaction, error) {
	t, err := scanTransaction(r.querier.QueryRow(ctx, getByTxRefQuery, txRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &escrow.NotFoundError{TxRef: txRef}
		}
		r.logger.Error("Failed to get escrow transaction by reference", "tx_ref", txRef, "error", err)
		return nil, fmt.Errorf("failed to get escrow transaction by reference: %w", err)
	}
	return t, nil
}

// ListByPayee returns all transactions of a payee, newest first
func (r *TransactionRepository) ListByPayee(ctx context.Context, payeeID string) ([]*escrow.Transaction, error) {
	return r.list(ctx, "payee transactions", listByPayeeQuery, payeeID)
}

// ListSettleable snapshots the held transactions the settlement sweep may pay out.
// maxAttempts <= 0 disables the attempt cap.
func (r *TransactionRepository) ListSettleable(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*escrow.Transaction, error) {
	if maxAttempts <= 0 {
		maxAttempts = math.MaxInt32
	}
	return r.list(ctx, "settleable transactions", listSettleableQuery,
		escrow.StatusHeld,
		escrow.BalanceTypeIncoming,
		now,
		escrow.TransferStatusPending,
		escrow.TransferStatusFailed,
		maxAttempts,
		limit,
	)
}

// ListExpiredPending returns pending transactions created before the cutoff, oldest first
func (r *TransactionRepository) ListExpiredPending(ctx context.Context, createdBefore time.Time, limit int) ([]*escrow.Transaction, error) {
	return r.list(ctx, "expired pending transactions", listExpiredPendingQuery, escrow.StatusPending, createdBefore, limit)
}

// Update writes every mutable field of t, provided the stored row is still at
// version t.Version-1. Returns ErrConcurrentModification otherwise.
func (r *TransactionRepository) Update(ctx context.Context, t *escrow.Transaction) error {
	result, err := r.querier.Exec(ctx, updateTransactionQuery,
		t.Status,
		t.PaymentStatus,
		t.TransferStatus,
		t.BalanceType,
		t.HoldUntil,
		nullIfEmpty(t.TransferReference),
		nullIfEmpty(t.ExternalTransactionID),
		t.TransferAttempts,
		nullIfEmpty(t.FailureReason),
		t.Version,
		t.UpdatedAt,
		t.ID,
		t.Version-1, // Check previous version for optimistic locking
	)
	if err != nil {
		r.logger.Error("Failed to update escrow transaction", "tx_ref", t.TxRef, "error", err)
		return fmt.Errorf("failed to update escrow transaction: %w", err)
	}

	if result.RowsAffected() == 0 {
		return escrow.ErrConcurrentModification{TransactionID: t.ID}
	}

	return nil
}

func (r *TransactionRepository) list(ctx context.Context, what, query string, args ...interface{}) ([]*escrow.Transaction, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query "+what, "error", err)
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	defer rows.Close()

	transactions := make([]*escrow.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			r.logger.Error("Failed to scan escrow transaction", "error", err)
			return nil, fmt.Errorf("failed to scan escrow transaction: %w", err)
		}
		transactions = append(transactions, t)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over "+what, "error", err)
		return nil, fmt.Errorf("error iterating over %s: %w", what, err)
	}

	return transactions, nil
}

func scanTransaction(row pgx.Row) (*escrow.Transaction, error) {
	var t escrow.Transaction
	err := row.Scan(
		&t.ID,
		&t.TxRef,
		&t.Amount,
		&t.Currency,
		&t.Client.Name,
		&t.Client.Email,
		&t.Client.Phone,
		&t.Payee.ID,
		&t.Payee.ExternalAccountID,
		&t.Status,
		&t.PaymentStatus,
		&t.TransferStatus,
		&t.BalanceType,
		&t.HoldUntil,
		&t.TransferReference,
		&t.ExternalTransactionID,
		&t.TransferAttempts,
		&t.FailureReason,
		&t.Version,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
