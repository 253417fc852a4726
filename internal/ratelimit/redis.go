package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const limiterKeyPrefix = "rl:"

// RedisLimiter is a fixed-window counter on Redis INCR+EXPIRE, shared across
// instances. The first increment in a window sets the TTL; the window
// boundary is therefore aligned to the first request, same as MemoryLimiter.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedis constructs a Redis-backed fixed-window limiter.
func NewRedis(client *redis.Client, limit int, windowSize time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	return &RedisLimiter{client: client, limit: limit, window: windowSize}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	redisKey := limiterKeyPrefix + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return nil, err
	}
	if count == 1 {
		// First hit opens the window.
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return nil, err
		}
	}

	ttl, err := l.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	resetAt := time.Now().Add(ttl)

	if count > int64(l.limit) {
		deniedTotal.WithLabelValues("redis").Inc()
		return &Result{Allowed: false, Limit: l.limit, Remaining: 0, ResetAt: resetAt}, nil
	}

	return &Result{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - int(count),
		ResetAt:   resetAt,
	}, nil
}
