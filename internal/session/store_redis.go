package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	dErrors "storegate/pkg/domainerrors"
	"storegate/pkg/platform/sentinel"
)

var extendDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "storegate_session_extend_duration_ms",
	Help:    "Latency of session extension operations in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const (
	// Redis key prefix for session records.
	sessionKeyPrefix = "sess:"

	// extendRetries bounds the optimistic-concurrency retry loop.
	extendRetries = 3
)

// RedisStore persists sessions in Redis. This is the recommended store for
// multi-instance deployments: records carry their own TTL, and Extend uses
// WATCH-based compare-and-swap so concurrent extends cannot clash or revive
// an expired record.
type RedisStore struct {
	client      *redis.Client
	ttl         time.Duration
	maxLifetime time.Duration
	clock       func() time.Time
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisTTL overrides the default sliding window.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRedisMaxLifetime overrides the absolute extension ceiling.
func WithRedisMaxLifetime(max time.Duration) RedisOption {
	return func(s *RedisStore) {
		if max > 0 {
			s.maxLifetime = max
		}
	}
}

// WithRedisClock sets the clock function for testability.
func WithRedisClock(clock func() time.Time) RedisOption {
	return func(s *RedisStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewRedis constructs a Redis-backed session store.
func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:      client,
		ttl:         DefaultTTL,
		maxLifetime: DefaultMaxLifetime,
		clock:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

func (s *RedisStore) Create(ctx context.Context, params CreateParams) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	id, err := newID()
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "generate session id", err)
	}

	now := s.clock()
	sess := &Session{
		ID:        id,
		UserID:    params.UserID,
		Email:     params.Email,
		Name:      params.Name,
		Role:      domainRole(params.Role),
		IPAddress: params.IPAddress,
		UserAgent: params.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "encode session", err)
	}

	if err := s.client.Set(ctx, sessionKey(id), payload, s.ttl).Err(); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "store session", err)
	}
	return sess, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load session", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "decode session", err)
	}
	// Redis TTL reaps on its own schedule; never trust it alone.
	if sess.ExpiredAt(s.clock()) {
		return nil, sentinel.ErrNotFound
	}
	return &sess, nil
}

func (s *RedisStore) Extend(ctx context.Context, id string, extension time.Duration) (*Session, error) {
	start := time.Now()
	defer func() {
		extendDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	if extension <= 0 {
		extension = s.ttl
	}

	key := sessionKey(id)
	var extended *Session

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}

		var sess Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			return err
		}

		now := s.clock()
		if sess.ExpiredAt(now) {
			return sentinel.ErrExpired
		}

		proposed := clampExpiry(sess.CreatedAt, now.Add(extension), s.maxLifetime)
		if proposed.After(sess.ExpiresAt) {
			sess.ExpiresAt = proposed
		}

		payload, err := json.Marshal(&sess)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, sess.ExpiresAt.Sub(now))
			return nil
		})
		if err != nil {
			return err
		}

		extended = &sess
		return nil
	}

	for range extendRetries {
		err := s.client.Watch(ctx, txn, key)
		switch {
		case err == nil:
			return extended, nil
		case errors.Is(err, redis.TxFailedErr):
			continue // lost the race, re-read and retry
		case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrExpired):
			return nil, err
		default:
			return nil, dErrors.Wrap(dErrors.CodeInternal, "extend session", err)
		}
	}
	return nil, dErrors.Wrap(dErrors.CodeInternal, "extend session", sentinel.ErrConflict)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "delete session", err)
	}
	return nil
}

// DeleteExpired is a no-op for Redis: records carry their own TTL and the
// server reaps them.
func (s *RedisStore) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}
