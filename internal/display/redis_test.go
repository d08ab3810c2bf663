package display

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/age-gender-ui/internal/logging"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ttl, zap.NewNop()), mr
}

func TestRedisStoreRoundTripsBinaryPayload(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, time.Minute)

	payload := []byte{0xFF, 0xD8, 0x00, 0x01, 0xFF, 0xD9}
	h, err := store.Put(ctx, payload, ContentType)
	require.NoError(t, err)
	assert.True(t, mr.Exists(keyPrefix+string(h)))

	obj, err := store.Get(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, payload, obj.Data)
	assert.Equal(t, ContentType, obj.ContentType)
}

func TestRedisStoreRevoke(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, time.Minute)

	h, err := store.Put(ctx, []byte("img"), ContentType)
	require.NoError(t, err)
	require.NoError(t, store.Revoke(ctx, h))

	assert.False(t, mr.Exists(keyPrefix+string(h)))
	_, err = store.Get(ctx, h)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreHandlesExpire(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, time.Minute)

	h, err := store.Put(ctx, []byte("img"), ContentType)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Get(ctx, h)
	assert.ErrorIs(t, err, ErrNotFound)
}

type transientTestError struct{}

func (transientTestError) Error() string   { return "transient" }
func (transientTestError) Timeout() bool   { return true }
func (transientTestError) Temporary() bool { return true }

func TestWithRetryRetriesTransientErrors(t *testing.T) {
	store := &RedisStore{
		logger:         zap.NewNop(),
		retryAttempts:  3,
		initialBackoff: time.Millisecond,
		maxBackoff:     2 * time.Millisecond,
	}

	attempts := 0
	err := store.withRetry(context.Background(), "h-1", "display.put", func() error {
		attempts++
		if attempts < 2 {
			return transientTestError{}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	store := &RedisStore{
		logger:         zap.NewNop(),
		retryAttempts:  3,
		initialBackoff: time.Millisecond,
		maxBackoff:     2 * time.Millisecond,
	}

	attempts := 0
	err := store.withRetry(context.Background(), "h-2", "display.get", func() error {
		attempts++
		return errors.New("WRONGTYPE")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)

	var opErr *logging.OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "display.get", opErr.Operation)
}
