package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// StoreLimiter adapts a ulule limiter store (fixed window) to Allower. The memory store
// backs the API when no Redis is configured; the Redis store serves RATE_LIMIT_STRATEGY=fixed.
type StoreLimiter struct {
	Store limiter.Store
}

// NewMemoryLimiter keeps counters in process memory.
func NewMemoryLimiter() StoreLimiter {
	return StoreLimiter{Store: memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          "pricing-ratelimit",
		CleanUpInterval: time.Minute,
	})}
}

// NewRedisStoreLimiter keeps fixed-window counters in Redis.
func NewRedisStoreLimiter(rdb *redis.Client, prefix string) (StoreLimiter, error) {
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return StoreLimiter{}, fmt.Errorf("redis limiter store: %w", err)
	}
	return StoreLimiter{Store: store}, nil
}

// Allow counts one event for key under a max-per-window rate.
func (l StoreLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if l.Store == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	lim := limiter.New(l.Store, limiter.Rate{Period: window, Limit: int64(max)})
	// Distinct rates must not share counters.
	res, err := lim.Get(ctx, fmt.Sprintf("%d:%s:%s", max, window, key))
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0), nil
}
