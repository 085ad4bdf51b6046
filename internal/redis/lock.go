package redisclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrClaimNotAcquired = errors.New("slot claim not acquired")
)

// ClaimLocker serialises commits for one (staff, start) key across processes.
type ClaimLocker interface {
	WithClaim(ctx context.Context, staffID uuid.UUID, start time.Time, fn func(ctx context.Context) error) error
}

type redisClaimLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

type LockerOption func(*redisClaimLocker)

// WithLockLogger sets where claim fallbacks are reported.
func WithLockLogger(logger *slog.Logger) LockerOption {
	return func(l *redisClaimLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRedisClaimLocker creates a locker that uses one Redis key per staff slot.
// When Redis cannot be reached the commit runs unclaimed; the store's
// conditional write still admits one booking per slot.
func NewRedisClaimLocker(client *redis.Client, ttl time.Duration, opts ...LockerOption) ClaimLocker {
	l := &redisClaimLocker{
		client: client,
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ClaimKey is the Redis key guarding a staff member's slot starting at start.
func ClaimKey(staffID uuid.UUID, start time.Time) string {
	return fmt.Sprintf("claim:slot:%s:%d", staffID.String(), start.UTC().Unix())
}

func (l *redisClaimLocker) WithClaim(ctx context.Context, staffID uuid.UUID, start time.Time, fn func(ctx context.Context) error) error {
	key := ClaimKey(staffID, start)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("acquire slot claim: %w", err)
		}
		l.logger.Warn("slot claim unavailable, committing without it", "key", key, "error", err)
		return fn(ctx)
	}
	if !ok {
		return ErrClaimNotAcquired
	}

	defer func() {
		// the caller's ctx may already be done
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisClaimLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot claim: %w", err)
	}
	return nil
}

// NoopClaimLocker runs fn directly. The store's conditional write still
// guarantees one booking per slot; the claim only narrows contention.
type NoopClaimLocker struct{}

func (NoopClaimLocker) WithClaim(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
