package xpcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitConfig is a fixed window: at most Max actions per Window.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Max: 10, Window: time.Minute}
}

// RedisRateLimiter counts actions with INCR and starts the window on the first hit.
type RedisRateLimiter struct {
	rdb    *redis.Client
	config RateLimitConfig
}

func NewRedisRateLimiter(rdb *redis.Client, config RateLimitConfig) *RedisRateLimiter {
	return &RedisRateLimiter{rdb: rdb, config: config}
}

func rateKey(key string) string {
	return fmt.Sprintf("rate:xp:%s", key)
}

// Allow records one action for key and reports whether it is within the limit.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if rl == nil || rl.rdb == nil {
		return false, fmt.Errorf("Redis client not available")
	}
	k := rateKey(key)
	count, err := rl.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := rl.rdb.Expire(ctx, k, rl.config.Window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(rl.config.Max), nil
}

type window struct {
	count int
	start time.Time
}

// MemoryRateLimiter is the single-instance equivalent of RedisRateLimiter.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	config  RateLimitConfig
	now     func() time.Time
	windows map[string]*window
}

func NewMemoryRateLimiter(config RateLimitConfig) *MemoryRateLimiter {
	return &MemoryRateLimiter{config: config, now: time.Now, windows: make(map[string]*window)}
}

func (rl *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= rl.config.Window {
		w = &window{start: now}
		rl.windows[key] = w
	}
	w.count++
	return w.count <= rl.config.Max, nil
}
