package settlement

import (
	"context"
	"errors"

	"github.com/escrow-settlement/internal/domain/escrow"
	"github.com/escrow-settlement/internal/platform/gateway"
	"github.com/escrow-settlement/internal/platform/lock"
)

// Transitioner applies the payout and expiry transitions of the escrow state machine
type Transitioner interface {
	BeginTransfer(ctx context.Context, t *escrow.Transaction) error
	ApplyTransferOutcome(ctx context.Context, t *escrow.Transaction, success bool, reference string) error
	Expire(ctx context.Context, t *escrow.Transaction) error
}

// Transferrer sends payouts to the processor
type Transferrer interface {
	Transfer(ctx context.Context, req gateway.TransferRequest) (*gateway.TransferResult, error)
}

// Lease is a held sweep lock
type Lease interface {
	Release(ctx context.Context) error
}

// AcquireFunc takes the sweep lock. It returns lock.ErrNotAcquired when
// another worker holds it.
type AcquireFunc func(ctx context.Context) (Lease, error)

// RedisLease adapts a redis locker to an AcquireFunc
func RedisLease(locker *lock.Locker) AcquireFunc {
	return func(ctx context.Context) (Lease, error) {
		lease, err := locker.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return lease, nil
	}
}

// ErrSkipped is returned by a run that did not get the sweep lock
var ErrSkipped = errors.New("sweep skipped: lease not acquired")
