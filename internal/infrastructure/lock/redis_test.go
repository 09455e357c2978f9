package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corelock "milkwms/internal/core/lock"
)

func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestKeyPrefix(t *testing.T) {
	rdb := unreachableClient()
	defer rdb.Close()

	assert.Equal(t, "milkwms:lock:note:42", NewRedisLocker(rdb).Key("note:42"))
	assert.Equal(t, "x/note:42", NewRedisLocker(rdb, WithPrefix("x/")).Key("note:42"))
}

func TestObtainTransportErrorIsNotBusy(t *testing.T) {
	rdb := unreachableClient()
	defer rdb.Close()

	_, err := NewRedisLocker(rdb).Obtain(context.Background(), "note:1", time.Second)
	require.Error(t, err)
	assert.False(t, errors.Is(err, corelock.ErrNotObtained))
}

func TestConnectFailsFast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Connect(ctx, "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
