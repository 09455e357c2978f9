// Package lock implements core/lock.Locker on Redis with bsm/redislock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	corelock "milkwms/internal/core/lock"
	"milkwms/pkg/logger"
)

// DefaultPrefix namespaces every key this service locks.
const DefaultPrefix = "milkwms:lock:"

// RedisLocker obtains leases through redislock.
type RedisLocker struct {
	client *redislock.Client
	prefix string
	retry  redislock.RetryStrategy
}

var _ corelock.Locker = (*RedisLocker)(nil)

// Option configures a RedisLocker.
type Option func(*RedisLocker)

// WithPrefix replaces DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(l *RedisLocker) { l.prefix = prefix }
}

// WithRetry waits up to wait for a busy key, polling every interval.
func WithRetry(interval, wait time.Duration) Option {
	return func(l *RedisLocker) {
		if interval <= 0 || wait <= 0 {
			l.retry = redislock.NoRetry()
			return
		}
		l.retry = redislock.LimitRetry(redislock.LinearBackoff(interval), int(wait/interval))
	}
}

// NewRedisLocker wraps an existing go-redis client.
func NewRedisLocker(rdb redis.UniversalClient, opts ...Option) *RedisLocker {
	l := &RedisLocker{
		client: redislock.New(rdb),
		prefix: DefaultPrefix,
		retry:  redislock.NoRetry(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the redis key used for name.
func (l *RedisLocker) Key(name string) string {
	return l.prefix + name
}

// Obtain implements core/lock.Locker.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (corelock.Lease, error) {
	lk, err := l.client.Obtain(ctx, l.Key(key), ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		logger.Debug(ctx, "lock busy", "key", key)
		return nil, corelock.ErrNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return &lease{lock: lk, key: key}, nil
}

type lease struct {
	lock *redislock.Lock
	key  string
}

// Release frees the key. A lease that already expired is not an error.
func (l *lease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		logger.Warn(ctx, "lock expired before release", "key", l.key)
		return nil
	}
	return err
}

// Connect dials redis and verifies it with PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return rdb, nil
}
