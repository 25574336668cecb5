package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines escrow transaction persistence operations
type Repository interface {
	Create(ctx context.Context, transaction *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetByTxRef(ctx context.Context, txRef string) (*Transaction, error)

	// ListByPayee returns every transaction of the payee, newest first
	ListByPayee(ctx context.Context, payeeID string) ([]*Transaction, error)

	// ListSettleable snapshots held transactions whose hold has matured and
	// whose payout may be attempted, oldest hold first
	ListSettleable(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*Transaction, error)

	// ListExpiredPending returns pending transactions created before the cutoff
	ListExpiredPending(ctx context.Context, createdBefore time.Time, limit int) ([]*Transaction, error)

	// Update persists a mutated transaction. The caller must have advanced
	// Version by exactly one; the row is only written if it still holds the
	// previous version.
	Update(ctx context.Context, transaction *Transaction) error
	WithTx(tx pgx.Tx) Repository
}
