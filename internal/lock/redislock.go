package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/inventario-pricing/internal/resilience"
)

// ErrNotConfigured is returned when the locker has no Redis client.
var ErrNotConfigured = errors.New("lock: redis client not configured")

const maxBackoff = time.Second

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Locker provides a Redis-backed lock shared by every replica using the same Redis.
type Locker struct {
	R *redis.Client
	// RetryBackoff is the first retry delay. Later attempts back off exponentially with jitter.
	RetryBackoff time.Duration
}

// WithLock executes fn while holding a lock for key. The lock is released even if fn
// returns an error. If the lock cannot be acquired before ctx is done, ctx.Err() is returned.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return ErrNotConfigured
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	base := l.RetryBackoff
	if base <= 0 {
		base = 50 * time.Millisecond
	}

	for attempt := 1; ; attempt++ {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			defer l.release(context.Background(), key, token)
			return fn(ctx)
		}
		wait := resilience.Backoff(base, attempt, 0.2)
		if wait > maxBackoff || wait <= 0 {
			wait = maxBackoff
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l Locker) release(ctx context.Context, key, token string) {
	err := l.R.Eval(ctx, releaseScript, []string{key}, token).Err()
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unknown command") {
		l.releaseOwned(ctx, key, token)
	}
}

// releaseOwned serves servers without scripting. It only deletes the key while it
// still holds our token, so a lock that expired and was taken by another holder survives.
func (l Locker) releaseOwned(ctx context.Context, key, token string) {
	_ = l.R.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if err != nil || current != token {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
}
