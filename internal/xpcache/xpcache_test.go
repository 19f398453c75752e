package xpcache

import (
	"context"
	"testing"
	"time"

	"medquest/models"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatsCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewMemoryStatsCache(time.Minute)
	c.now = func() time.Time { return now }

	_, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	gen, err := c.Generation(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, &models.UserStats{UserID: "u1", Available: true}, gen, 0))
	got, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Available)

	t.Run("Invalidate", func(t *testing.T) {
		require.NoError(t, c.Invalidate(ctx, "u1"))
		_, ok, _ := c.Get(ctx, "u1")
		assert.False(t, ok)
	})

	t.Run("StaleGenerationIsDropped", func(t *testing.T) {
		before, err := c.Generation(ctx, "u3")
		require.NoError(t, err)
		// an activity lands while the stats are being built
		require.NoError(t, c.Invalidate(ctx, "u3"))
		require.NoError(t, c.Set(ctx, &models.UserStats{UserID: "u3"}, before, 0))
		_, ok, _ := c.Get(ctx, "u3")
		assert.False(t, ok)

		after, err := c.Generation(ctx, "u3")
		require.NoError(t, err)
		assert.Equal(t, before+1, after)
		require.NoError(t, c.Set(ctx, &models.UserStats{UserID: "u3"}, after, 0))
		_, ok, _ = c.Get(ctx, "u3")
		assert.True(t, ok)
	})

	t.Run("Expiry", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, &models.UserStats{UserID: "u2"}, 0, 0))
		now = now.Add(time.Minute)
		_, ok, _ := c.Get(ctx, "u2")
		assert.False(t, ok)
	})

	t.Run("MaxTTLShortensExpiry", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, &models.UserStats{UserID: "u4"}, 0, 10*time.Second))
		now = now.Add(9 * time.Second)
		_, ok, _ := c.Get(ctx, "u4")
		assert.True(t, ok)
		now = now.Add(time.Second)
		_, ok, _ = c.Get(ctx, "u4")
		assert.False(t, ok, "entry must not outlive the cap")
	})
}

func TestEffectiveTTL(t *testing.T) {
	assert.Equal(t, time.Minute, effectiveTTL(time.Minute, 0))
	assert.Equal(t, time.Minute, effectiveTTL(time.Minute, time.Hour))
	assert.Equal(t, 5*time.Second, effectiveTTL(time.Minute, 5*time.Second))
}

func TestMemoryRateLimiter(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := NewMemoryRateLimiter(RateLimitConfig{Max: 3, Window: time.Minute})
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, ok, "call %d", i+1)
	}
	ok, _ := rl.Allow(ctx, "u1")
	assert.False(t, ok)

	ok, _ = rl.Allow(ctx, "u2")
	assert.True(t, ok, "limits are per key")

	now = now.Add(time.Minute)
	ok, _ = rl.Allow(ctx, "u1")
	assert.True(t, ok, "a new window starts after expiry")
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "stats:{u1}", statsKey("u1"))
	assert.Equal(t, "stats:{u1}:gen", generationKey("u1"))
	assert.Equal(t, "rate:xp:u1", rateKey("u1"))
}

func TestRedisRateLimiterWithoutClient(t *testing.T) {
	var rl *RedisRateLimiter
	_, err := rl.Allow(context.Background(), "u1")
	assert.Error(t, err)
}

type capturePublisher struct {
	events []models.GamificationEvent
}

func (c *capturePublisher) Publish(e models.GamificationEvent) {
	c.events = append(c.events, e)
}

func TestEventCodec(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	in := models.GamificationEvent{
		Type:      models.EventLevelUp,
		UserID:    "u1",
		Track:     models.TrackQuestions,
		NewLevel:  3,
		Timestamp: ts,
	}
	values, err := encodeEvent(in)
	require.NoError(t, err)

	out, err := decodeEvent(values)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeEvent(map[string]interface{}{"payload": "x"})
	assert.Error(t, err)
	_, err = decodeEvent(map[string]interface{}{"data": "{not json"})
	assert.Error(t, err)
}

func TestEventStream_DeliverSkipsMalformed(t *testing.T) {
	local := &capturePublisher{}
	s := NewEventStream(nil, local, nil)

	values, err := encodeEvent(models.GamificationEvent{Type: models.EventXPGained, UserID: "u1", XPGained: 5})
	require.NoError(t, err)
	s.deliver(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"data": 42}})
	s.deliver(redis.XMessage{ID: "2-0", Values: values})

	require.Len(t, local.events, 1)
	assert.Equal(t, 5, local.events[0].XPGained)
}
