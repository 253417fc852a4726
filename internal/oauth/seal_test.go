package oauth

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storegate/pkg/domain"
	dErrors "storegate/pkg/domainerrors"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestSealerRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s, err := NewSealer(testKey(), WithSealerClock(func() time.Time { return now }))
	require.NoError(t, err)

	sealed, err := s.Seal(Bootstrap{
		UserID: "u1",
		Email:  "u1@example.com",
		Name:   "User One",
		Role:   domain.RoleAdmin,
	})
	require.NoError(t, err)
	assert.NotContains(t, sealed, "u1@example.com", "sealed parameter must not leak plaintext")

	got, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, domain.RoleAdmin, got.Role)
	assert.Equal(t, now.Unix(), got.IssuedAt)
}

func TestSealerRejectsTampering(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)

	sealed, err := s.Seal(Bootstrap{UserID: "u1", Email: "u1@example.com", Role: domain.RoleUser})
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.RawURLEncoding.EncodeToString(raw)

	_, err = s.Open(tampered)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformedToken))
}

func TestSealerRejectsGarbage(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)

	for _, input := range []string{"", "not base64!!", "c2hvcnQ"} {
		_, err := s.Open(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestSealerRejectsExpired(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s, err := NewSealer(testKey(), WithSealerClock(clock), WithBootstrapTTL(5*time.Minute))
	require.NoError(t, err)

	sealed, err := s.Seal(Bootstrap{UserID: "u1", Email: "u1@example.com", Role: domain.RoleUser})
	require.NoError(t, err)

	now = now.Add(4 * time.Minute)
	_, err = s.Open(sealed)
	require.NoError(t, err, "inside the window")

	now = now.Add(2 * time.Minute)
	_, err = s.Open(sealed)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeExpiredToken))
}

func TestSealerDifferentKeysCannotOpen(t *testing.T) {
	a, err := NewSealer(testKey())
	require.NoError(t, err)

	otherKey := testKey()
	otherKey[0] ^= 0xFF
	b, err := NewSealer(otherKey)
	require.NoError(t, err)

	sealed, err := a.Seal(Bootstrap{UserID: "u1", Email: "u1@example.com", Role: domain.RoleUser})
	require.NoError(t, err)

	_, err = b.Open(sealed)
	require.Error(t, err)
}

func TestNewSealerRejectsBadKey(t *testing.T) {
	_, err := NewSealer([]byte("too short"))
	require.Error(t, err)
}
