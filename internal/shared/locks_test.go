package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) (*Lock, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLock(client, time.Minute), srv
}

func TestLockMutualExclusion(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()
	key := BillingLockKey(1, 3, 2026)

	require.NoError(t, lock.Acquire(ctx, key))

	err := lock.Acquire(ctx, key)
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}

	require.NoError(t, lock.Release(ctx, key))
	require.NoError(t, lock.Acquire(ctx, key))
}

func TestLockExpiresWithTTL(t *testing.T) {
	lock, srv := newTestLock(t)
	ctx := context.Background()
	key := BillingLockKey(1, 3, 2026)

	require.NoError(t, lock.Acquire(ctx, key))
	srv.FastForward(2 * time.Minute)
	require.NoError(t, lock.Acquire(ctx, key))
}

func TestBillingLockKeyPerPeriod(t *testing.T) {
	a := BillingLockKey(1, 3, 2026)
	b := BillingLockKey(1, 4, 2026)
	c := BillingLockKey(2, 3, 2026)
	if a == b || a == c {
		t.Fatalf("lock keys collide: %s %s %s", a, b, c)
	}
	if a != "billing:1:2026-03:lock" {
		t.Fatalf("unexpected key format %s", a)
	}
}
