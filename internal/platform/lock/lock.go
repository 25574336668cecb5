// Package lock provides a Redis lease that keeps settlement sweeps from
// overlapping across worker replicas.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when another holder owns the lease
var ErrNotAcquired = errors.New("lease held by another process")

// ErrNotOwned is returned on release when the lease expired or was taken over
var ErrNotOwned = errors.New("lease not owned by this token")

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// client is the subset of redis.Cmdable used by the lease
type client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Locker hands out leases on a single key
type Locker struct {
	client client
	key    string
	ttl    time.Duration
}

// Lease is a held lock. Release it when the guarded work is done.
type Lease struct {
	client client
	key    string
	token  string
}

// NewLocker creates a locker for key whose leases expire after ttl
func NewLocker(rdb redis.Cmdable, key string, ttl time.Duration) *Locker {
	return &Locker{client: rdb, key: key, ttl: ttl}
}

// Acquire takes the lease with SET NX PX. It returns ErrNotAcquired when
// the key is already set.
func (l *Locker) Acquire(ctx context.Context) (*Lease, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	return &Lease{client: l.client, key: l.key, token: token}, nil
}

// Release deletes the key only if it still holds this lease's token
func (l *Lease) Release(ctx context.Context) error {
	deleted, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	if deleted == 0 {
		return ErrNotOwned
	}
	return nil
}
