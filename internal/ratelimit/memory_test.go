package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewMemory(3, time.Minute, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	t.Run("allows exactly limit requests per window", func(t *testing.T) {
		for i := range 3 {
			res, err := limiter.Allow(ctx, "203.0.113.7")
			require.NoError(t, err)
			assert.True(t, res.Allowed, "request %d", i)
			assert.Equal(t, 3-(i+1), res.Remaining)
		}

		res, err := limiter.Allow(ctx, "203.0.113.7")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Zero(t, res.Remaining)
	})

	t.Run("keys are independent", func(t *testing.T) {
		res, err := limiter.Allow(ctx, "198.51.100.9")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("window reset restores the budget", func(t *testing.T) {
		now = now.Add(time.Minute + time.Second)
		res, err := limiter.Allow(ctx, "203.0.113.7")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2, res.Remaining)
	})
}

func TestRedisLimiter(t *testing.T) {
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	limiter := NewRedis(client, 2, time.Minute)
	ctx := context.Background()

	for range 2 {
		res, err := limiter.Allow(ctx, "203.0.113.7")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := limiter.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	mini.FastForward(2 * time.Minute)

	res, err = limiter.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
