package ratelimit

import (
	"context"
	"sync"
	"time"
)

// window tracks a single fixed window's count and start.
type window struct {
	count   int
	startAt time.Time
}

// MemoryLimiter is a mutex-guarded fixed-window counter. Adequate for a
// single process; use RedisLimiter when multiple instances share limits.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	window  time.Duration
	clock   func() time.Time
}

// MemoryLimiterOption configures a MemoryLimiter.
type MemoryLimiterOption func(*MemoryLimiter)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) MemoryLimiterOption {
	return func(l *MemoryLimiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// NewMemory constructs a fixed-window limiter allowing limit requests per
// window per key. Non-positive arguments fall back to the defaults.
func NewMemory(limit int, windowSize time.Duration, opts ...MemoryLimiterOption) *MemoryLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	l := &MemoryLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		window:  windowSize,
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (*Result, error) {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.startAt) >= l.window {
		w = &window{startAt: now}
		l.windows[key] = w
	}

	resetAt := w.startAt.Add(l.window)
	if w.count >= l.limit {
		deniedTotal.WithLabelValues("memory").Inc()
		return &Result{Allowed: false, Limit: l.limit, Remaining: 0, ResetAt: resetAt}, nil
	}

	w.count++
	return &Result{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - w.count,
		ResetAt:   resetAt,
	}, nil
}
