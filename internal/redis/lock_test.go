package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (ClaimLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisClaimLocker(client, 2*time.Second), mr
}

func TestWithClaimReleasesKey(t *testing.T) {
	locker, mr := newTestLocker(t)
	staffID := uuid.New()
	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	called := false
	err := locker.WithClaim(context.Background(), staffID, start, func(ctx context.Context) error {
		called = true
		assert.True(t, mr.Exists(ClaimKey(staffID, start)))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, mr.Exists(ClaimKey(staffID, start)))
}

func TestWithClaimRejectsConcurrentHolder(t *testing.T) {
	locker, _ := newTestLocker(t)
	staffID := uuid.New()
	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	err := locker.WithClaim(context.Background(), staffID, start, func(ctx context.Context) error {
		inner := locker.WithClaim(ctx, staffID, start, func(context.Context) error {
			t.Fatal("nested claim must not run")
			return nil
		})
		assert.ErrorIs(t, inner, ErrClaimNotAcquired)

		// a different start time is an independent key
		return locker.WithClaim(ctx, staffID, start.Add(30*time.Minute), func(context.Context) error { return nil })
	})
	require.NoError(t, err)
}

func TestWithClaimDoesNotDeleteForeignToken(t *testing.T) {
	locker, mr := newTestLocker(t)
	staffID := uuid.New()
	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	key := ClaimKey(staffID, start)

	err := locker.WithClaim(context.Background(), staffID, start, func(ctx context.Context) error {
		// simulate expiry and takeover by another process
		require.NoError(t, mr.Set(key, "someone-else"))
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")

	val, getErr := mr.Get(key)
	require.NoError(t, getErr)
	assert.Equal(t, "someone-else", val)
}

func TestWithClaimFallsThroughWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewRedisClaimLocker(client, 2*time.Second)
	mr.Close()

	called := false
	err := locker.WithClaim(context.Background(), uuid.New(), time.Now(), func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestWithClaimHonoursCancelledContext(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := locker.WithClaim(ctx, uuid.New(), time.Now(), func(context.Context) error {
		t.Fatal("must not run after cancellation")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
