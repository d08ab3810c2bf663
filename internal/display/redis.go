package display

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/age-gender-ui/internal/logging"
)

const keyPrefix = "display:"

// RedisStore keeps handles in Redis with a TTL, so handles a crashed process
// never revoked still expire.
type RedisStore struct {
	client         *redis.Client
	ttl            time.Duration
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewRedisStore constructs a Redis-backed store.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client:         client,
		ttl:            ttl,
		logger:         logger.Named("display_store"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Put writes data and its content type under a fresh handle.
func (s *RedisStore) Put(ctx context.Context, data []byte, contentType string) (Handle, error) {
	h := Handle(uuid.NewString())
	key := keyPrefix + string(h)
	err := s.withRetry(ctx, string(h), "display.put", func() error {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "data", data, "content_type", contentType)
			if s.ttl > 0 {
				pipe.Expire(ctx, key, s.ttl)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return "", err
	}
	return h, nil
}

// Get resolves a handle.
func (s *RedisStore) Get(ctx context.Context, h Handle) (*Object, error) {
	var fields map[string]string
	err := s.withRetry(ctx, string(h), "display.get", func() error {
		var err error
		fields, err = s.client.HGetAll(ctx, keyPrefix+string(h)).Result()
		return err
	})
	if err != nil {
		return nil, err
	}
	data, ok := fields["data"]
	if !ok {
		return nil, ErrNotFound
	}
	return &Object{Data: []byte(data), ContentType: fields["content_type"]}, nil
}

// Revoke deletes a handle. Revoking an unknown handle is a no-op.
func (s *RedisStore) Revoke(ctx context.Context, h Handle) error {
	return s.withRetry(ctx, string(h), "display.revoke", func() error {
		return s.client.Del(ctx, keyPrefix+string(h)).Err()
	})
}

func (s *RedisStore) withRetry(ctx context.Context, handle, operation string, fn func() error) error {
	backoff := s.initialBackoff
	opLogger := logging.WithOperation(s.logger, operation, "").With(zap.String("handle", handle))
	var err error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, "", ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= s.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == s.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, "", err)
		}
		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, "", err)
}

func isTransientError(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}
	return false
}
