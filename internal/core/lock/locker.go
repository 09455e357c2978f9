// Package lock defines a cross-process mutual exclusion port.
// Row locks inside the database remain the source of truth; a Locker only keeps
// several API processes from racing into the same completion at once.
package lock

import (
	"context"
	"errors"
	"time"

	"milkwms/internal/core/apperror"
)

// ErrNotObtained is returned when the key is held by someone else.
var ErrNotObtained = errors.New("lock not obtained")

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker obtains named leases.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// With runs fn while holding key. A busy key surfaces as a conflict.
func With(ctx context.Context, l Locker, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}
	lease, err := l.Obtain(ctx, key, ttl)
	if errors.Is(err, ErrNotObtained) {
		return apperror.NewConflict("operation already in progress").WithDetail("lock", key)
	}
	if err != nil {
		return apperror.NewInternal(err).WithDetail("lock", key)
	}
	defer func() { _ = lease.Release(context.WithoutCancel(ctx)) }()
	return fn(ctx)
}

// Noop never blocks.
type Noop struct{}

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }

// Obtain implements Locker.
func (Noop) Obtain(context.Context, string, time.Duration) (Lease, error) {
	return noopLease{}, nil
}
