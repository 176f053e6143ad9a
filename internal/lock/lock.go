package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when the lock is still held by someone else once the
// context expires.
var ErrNotAcquired = errors.New("lock not acquired")

// Release gives the lock back. It is safe to call once.
type Release func(ctx context.Context) error

// Locker serialises runs that recreate the same collection.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Noop is used when no lock backend is configured.
type Noop struct{}

func (Noop) Acquire(ctx context.Context, _ string) (Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return func(context.Context) error { return nil }, nil
}
