package session

import (
	"context"
	"sync"
	"time"

	dErrors "storegate/pkg/domainerrors"
	"storegate/pkg/platform/sentinel"
)

// MemoryStore keeps sessions in a mutex-guarded map. Adequate for a single
// process; multi-instance deployments should use RedisStore or PostgresStore.
// Expiry is lazy: expired records linger until Get rejects them or the
// sweeper reaps them, but they are never returned as valid.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	ttl         time.Duration
	maxLifetime time.Duration
	clock       func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithTTL overrides the default sliding window.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMaxLifetime overrides the absolute extension ceiling.
func WithMaxLifetime(max time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if max > 0 {
			s.maxLifetime = max
		}
	}
}

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemory constructs an in-memory session store.
func NewMemory(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions:    make(map[string]*Session),
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

func (s *MemoryStore) Create(_ context.Context, params CreateParams) (*Session, error) {
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

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	out := *sess
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || sess.ExpiredAt(s.clock()) {
		return nil, sentinel.ErrNotFound
	}
	out := *sess
	return &out, nil
}

func (s *MemoryStore) Extend(_ context.Context, id string, extension time.Duration) (*Session, error) {
	if extension <= 0 {
		extension = s.ttl
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	now := s.clock()
	if sess.ExpiredAt(now) {
		return nil, sentinel.ErrExpired
	}

	proposed := clampExpiry(sess.CreatedAt, now.Add(extension), s.maxLifetime)
	if proposed.After(sess.ExpiresAt) {
		sess.ExpiresAt = proposed
	}

	out := *sess
	return &out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	var reaped int64
	for id, sess := range s.sessions {
		if sess.ExpiredAt(now) {
			delete(s.sessions, id)
			reaped++
		}
	}
	return reaped, nil
}

// Sweep reaps expired sessions on the given interval until ctx is canceled.
// Run it from the server's background group.
func (s *MemoryStore) Sweep(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = s.DeleteExpired(ctx)
		}
	}
}
