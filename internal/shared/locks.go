package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotObtained is returned when another holder owns the key.
var ErrLockNotObtained = errors.New("lock not obtained")

// QuoteSendLockKey builds the redis key serialising sends of one quote.
func QuoteSendLockKey(quoteID int64) string {
	return fmt.Sprintf("quotes:%d:send:lock", quoteID)
}

// Lock is a held distributed lock.
type Lock interface {
	Release(ctx context.Context) error
}

// RedisLocker hands out redislock leases.
type RedisLocker struct {
	client *redislock.Client
}

// NewRedisLocker wraps a go-redis client.
func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

// Obtain tries once to take key for ttl.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("locker not initialised")
	}
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrLockNotObtained
		}
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return redisLock{lock: lock}, nil
}

type redisLock struct {
	lock *redislock.Lock
}

func (l redisLock) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}
