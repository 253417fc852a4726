package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "storegate/pkg/domainerrors"
	"storegate/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	now   time.Time
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.now = time.Unix(1_700_000_000, 0)
	s.store = NewMemory(WithClock(func() time.Time { return s.now }))
}

func (s *MemoryStoreSuite) create() *Session {
	sess, err := s.store.Create(context.Background(), CreateParams{
		UserID:    "u1",
		Email:     "u1@example.com",
		Name:      "Player One",
		Role:      "user",
		IPAddress: "203.0.113.7",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	})
	s.Require().NoError(err)
	return sess
}

func (s *MemoryStoreSuite) TestCreate() {
	s.Run("generates unguessable id and computes expiry", func() {
		sess := s.create()
		s.Len(sess.ID, 43) // 32 bytes, base64url, no padding
		s.Equal(s.now, sess.CreatedAt)
		s.Equal(s.now.Add(DefaultTTL), sess.ExpiresAt)
		s.True(sess.ExpiresAt.After(sess.CreatedAt))

		other := s.create()
		s.NotEqual(sess.ID, other.ID)
	})

	s.Run("missing userId is a caller error", func() {
		_, err := s.store.Create(context.Background(), CreateParams{Email: "x@example.com"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("missing email is a caller error", func() {
		_, err := s.store.Create(context.Background(), CreateParams{UserID: "u1"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown role falls back to user", func() {
		sess, err := s.store.Create(context.Background(), CreateParams{
			UserID: "u2", Email: "u2@example.com", Role: "wizard",
		})
		s.Require().NoError(err)
		s.Equal("user", sess.Role.String())
	})
}

func (s *MemoryStoreSuite) TestGet() {
	s.Run("returns live session", func() {
		sess := s.create()
		got, err := s.store.Get(context.Background(), sess.ID)
		s.Require().NoError(err)
		s.Equal(sess.UserID, got.UserID)
		s.Equal(sess.ExpiresAt, got.ExpiresAt)
	})

	s.Run("unknown id returns ErrNotFound", func() {
		_, err := s.store.Get(context.Background(), "missing")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("expired session is never returned as valid", func() {
		sess := s.create()
		s.now = s.now.Add(DefaultTTL + time.Second)
		_, err := s.store.Get(context.Background(), sess.ID)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestExtend() {
	s.Run("strictly increases expiry for a live session", func() {
		sess := s.create()
		s.now = s.now.Add(time.Hour)

		extended, err := s.store.Extend(context.Background(), sess.ID, DefaultTTL)
		s.Require().NoError(err)
		s.True(extended.ExpiresAt.After(sess.ExpiresAt))
		s.Equal(s.now.Add(DefaultTTL), extended.ExpiresAt)
	})

	s.Run("expired session is rejected, not revived", func() {
		sess := s.create()
		s.now = s.now.Add(DefaultTTL + time.Minute)

		_, err := s.store.Extend(context.Background(), sess.ID, DefaultTTL)
		s.Require().ErrorIs(err, sentinel.ErrExpired)

		// Still dead afterwards.
		_, err = s.store.Get(context.Background(), sess.ID)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("extension never drifts past the absolute ceiling", func() {
		sess := s.create()
		for range 20 {
			s.now = s.now.Add(12 * time.Hour)
			extended, err := s.store.Extend(context.Background(), sess.ID, DefaultTTL)
			if err != nil {
				break
			}
			ceiling := sess.CreatedAt.Add(DefaultMaxLifetime)
			s.False(extended.ExpiresAt.After(ceiling))
		}
	})

	s.Run("unknown session returns ErrNotFound", func() {
		_, err := s.store.Extend(context.Background(), "missing", time.Hour)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestDeleteExpired() {
	live := s.create()
	dead := s.create()

	// Push only one session past expiry by shortening its window directly.
	s.store.mu.Lock()
	s.store.sessions[dead.ID].ExpiresAt = s.now.Add(-time.Second)
	s.store.mu.Unlock()

	reaped, err := s.store.DeleteExpired(context.Background())
	s.Require().NoError(err)
	s.EqualValues(1, reaped)

	_, err = s.store.Get(context.Background(), live.ID)
	s.NoError(err)
	_, err = s.store.Get(context.Background(), dead.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestConcurrentExtend() {
	sess := s.create()

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.store.Extend(context.Background(), sess.ID, DefaultTTL)
		}()
	}
	wg.Wait()

	got, err := s.store.Get(context.Background(), sess.ID)
	s.Require().NoError(err)
	s.False(got.ExpiresAt.After(sess.CreatedAt.Add(DefaultMaxLifetime)))
}

func TestSessionDevice(t *testing.T) {
	sess := &Session{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"}
	if got := sess.Device(); got == "Unknown device" {
		t.Fatalf("expected parsed device summary, got %q", got)
	}

	empty := &Session{}
	if got := empty.Device(); got != "Unknown device" {
		t.Fatalf("expected fallback for empty user agent, got %q", got)
	}
}
