package xpcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"medquest/models"

	"github.com/redis/go-redis/v9"
)

// genTTL bounds how long an idle user's generation counter lingers. Losing
// it only makes the next in-flight Set miss.
const genTTL = 24 * time.Hour

// setIfGeneration writes the stats only while the user's generation still
// matches the one observed before they were built.
var setIfGeneration = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if (cur or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisStatsCache stores aggregated UserStats as JSON under stats:{<userId>}.
// Invalidate bumps a per-user generation next to it so a rebuild that raced
// with an activity cannot write its stale result back.
type RedisStatsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStatsCache(rdb *redis.Client, ttl time.Duration) *RedisStatsCache {
	return &RedisStatsCache{rdb: rdb, ttl: ttl}
}

// both keys share a hash tag so the script stays on one cluster slot
func statsKey(userID string) string {
	return fmt.Sprintf("stats:{%s}", userID)
}

func generationKey(userID string) string {
	return fmt.Sprintf("stats:{%s}:gen", userID)
}

// effectiveTTL is the shorter of the configured TTL and the caller's cap.
func effectiveTTL(ttl, maxTTL time.Duration) time.Duration {
	if maxTTL > 0 && maxTTL < ttl {
		return maxTTL
	}
	return ttl
}

func (c *RedisStatsCache) Get(ctx context.Context, userID string) (*models.UserStats, bool, error) {
	data, err := c.rdb.Get(ctx, statsKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stats models.UserStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, false, fmt.Errorf("decode cached stats: %w", err)
	}
	return &stats, true, nil
}

func (c *RedisStatsCache) Generation(ctx context.Context, userID string) (int64, error) {
	gen, err := c.rdb.Get(ctx, generationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisStatsCache) Set(ctx context.Context, stats *models.UserStats, generation int64, maxTTL time.Duration) error {
	ttl := effectiveTTL(c.ttl, maxTTL)
	if ttl.Milliseconds() < 1 {
		return nil
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	keys := []string{generationKey(stats.UserID), statsKey(stats.UserID)}
	return setIfGeneration.Run(ctx, c.rdb, keys, strconv.FormatInt(generation, 10), data, ttl.Milliseconds()).Err()
}

func (c *RedisStatsCache) Invalidate(ctx context.Context, userID string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(userID))
		pipe.Expire(ctx, generationKey(userID), genTTL)
		pipe.Del(ctx, statsKey(userID))
		return nil
	})
	return err
}

type memEntry struct {
	stats   models.UserStats
	expires time.Time
}

// MemoryStatsCache is the in-process cache used when Redis is not configured.
type MemoryStatsCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memEntry
	gens    map[string]int64
}

func NewMemoryStatsCache(ttl time.Duration) *MemoryStatsCache {
	return &MemoryStatsCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memEntry),
		gens:    make(map[string]int64),
	}
}

func (c *MemoryStatsCache) Get(_ context.Context, userID string) (*models.UserStats, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userID]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, userID)
		return nil, false, nil
	}
	stats := e.stats
	return &stats, true, nil
}

func (c *MemoryStatsCache) Generation(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[userID], nil
}

func (c *MemoryStatsCache) Set(_ context.Context, stats *models.UserStats, generation int64, maxTTL time.Duration) error {
	ttl := effectiveTTL(c.ttl, maxTTL)
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl <= 0 || c.gens[stats.UserID] != generation {
		return nil
	}
	c.entries[stats.UserID] = memEntry{stats: *stats, expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryStatsCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[userID]++
	delete(c.entries, userID)
	return nil
}
