package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another worker owns the critical section.
var ErrLockHeld = errors.New("shared: lock already held")

// BillingLockKey builds the redis key serializing bill posting per society
// and period.
func BillingLockKey(societyID int64, month, year int) string {
	return fmt.Sprintf("billing:%d:%04d-%02d:lock", societyID, year, month)
}

// Lock is a coarse redis mutex for cross-process critical sections.
type Lock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLock builds a Lock with the given lease TTL.
func NewLock(client *redis.Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Lock{client: client, ttl: ttl}
}

// Acquire takes the lock or returns ErrLockHeld.
func (l *Lock) Acquire(ctx context.Context, key string) error {
	ok, err := l.client.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return fmt.Errorf("shared: acquire lock %s: %w", key, err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// Release frees the lock. Releasing an expired lock is a no-op.
func (l *Lock) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}
