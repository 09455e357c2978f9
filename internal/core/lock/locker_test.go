package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkwms/internal/core/apperror"
)

type busyLocker struct{}

func (busyLocker) Obtain(context.Context, string, time.Duration) (Lease, error) {
	return nil, ErrNotObtained
}

type countingLocker struct {
	released int
}

type countingLease struct{ l *countingLocker }

func (c countingLease) Release(context.Context) error {
	c.l.released++
	return nil
}

func (l *countingLocker) Obtain(context.Context, string, time.Duration) (Lease, error) {
	return countingLease{l: l}, nil
}

func TestWith_BusyKeyIsConflict(t *testing.T) {
	called := false
	err := With(context.Background(), busyLocker{}, "note:1", time.Second, func(context.Context) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.True(t, apperror.IsConflict(err))
	assert.False(t, called)
}

func TestWith_ReleasesAfterError(t *testing.T) {
	l := &countingLocker{}
	boom := errors.New("boom")

	err := With(context.Background(), l, "note:1", time.Second, func(context.Context) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, l.released)
}

func TestWith_NoopAndNil(t *testing.T) {
	for _, l := range []Locker{Noop{}, nil} {
		calls := 0
		err := With(context.Background(), l, "k", time.Second, func(context.Context) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	}
}
