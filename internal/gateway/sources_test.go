package gateway_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"storegate/internal/gateway"
	"storegate/internal/gateway/mocks"
	"storegate/internal/session"
	"storegate/pkg/domain"
	dErrors "storegate/pkg/domainerrors"
)

func mintToken(t *testing.T, prefix domain.Role, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	if prefix == "" {
		return signed
	}
	return string(prefix) + " " + signed
}

type SourcesSuite struct {
	suite.Suite
	now time.Time
}

func TestSourcesSuite(t *testing.T) {
	suite.Run(t, new(SourcesSuite))
}

func (s *SourcesSuite) SetupTest() {
	s.now = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
}

func (s *SourcesSuite) clock() time.Time { return s.now }

func (s *SourcesSuite) TestSessionSource() {
	store := session.NewMemory(session.WithClock(s.clock))
	src := gateway.NewSessionSource(store)
	ctx := context.Background()

	sess, err := store.Create(ctx, session.CreateParams{UserID: "u1", Email: "u1@example.com", Role: "admin"})
	s.Require().NoError(err)

	s.Run("resolves a live session", func() {
		identity, err := src.Resolve(ctx, gateway.Credentials{SessionID: sess.ID})
		s.Require().NoError(err)
		s.Require().NotNil(identity)
		s.Equal("u1", identity.ID)
		s.Equal(domain.RoleAdmin, identity.Role)
	})

	s.Run("skips when no session cookie", func() {
		identity, err := src.Resolve(ctx, gateway.Credentials{})
		s.NoError(err)
		s.Nil(identity)
	})

	s.Run("skips on unknown session id", func() {
		identity, err := src.Resolve(ctx, gateway.Credentials{SessionID: "nope"})
		s.NoError(err)
		s.Nil(identity)
	})

	s.Run("skips on expired session", func() {
		s.now = s.now.Add(25 * time.Hour)
		identity, err := src.Resolve(ctx, gateway.Credentials{SessionID: sess.ID})
		s.NoError(err)
		s.Nil(identity)
	})
}

func (s *SourcesSuite) TestCookieTokenSource() {
	src := gateway.NewCookieTokenSource(s.clock)
	ctx := context.Background()

	s.Run("resolves a live prefixed token", func() {
		raw := mintToken(s.T(), domain.RoleUser, jwt.MapClaims{
			"userId": "u1",
			"role":   "user",
			"email":  "u1@example.com",
			"exp":    s.now.Add(time.Hour).Unix(),
		})
		identity, err := src.Resolve(ctx, gateway.Credentials{AuthToken: raw})
		s.Require().NoError(err)
		s.Require().NotNil(identity)
		s.Equal("u1", identity.ID)
		s.Equal(domain.RoleUser, identity.Role)
		s.Equal("u1@example.com", identity.Email)
	})

	s.Run("skips when no token cookie", func() {
		identity, err := src.Resolve(ctx, gateway.Credentials{})
		s.NoError(err)
		s.Nil(identity)
	})

	s.Run("malformed token is terminal", func() {
		_, err := src.Resolve(ctx, gateway.Credentials{AuthToken: "not-a-token"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeMalformedToken))
	})

	s.Run("expired token is terminal", func() {
		raw := mintToken(s.T(), domain.RoleUser, jwt.MapClaims{
			"userId": "u1",
			"role":   "user",
			"exp":    s.now.Add(-time.Minute).Unix(),
		})
		_, err := src.Resolve(ctx, gateway.Credentials{AuthToken: raw})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeExpiredToken))
	})

	s.Run("missing exp claim never expires", func() {
		raw := mintToken(s.T(), domain.RoleUser, jwt.MapClaims{
			"userId": "u1",
			"role":   "user",
		})
		identity, err := src.Resolve(ctx, gateway.Credentials{AuthToken: raw})
		s.Require().NoError(err)
		s.Equal("u1", identity.ID)
	})
}

func (s *SourcesSuite) TestBackendSource() {
	ctx := context.Background()
	claims := jwt.MapClaims{
		"userId": "a1",
		"role":   "admin",
		"email":  "a1@example.com",
		"exp":    s.now.Add(time.Hour).Unix(),
	}

	s.Run("returns backend profile on success", func() {
		ctrl := gomock.NewController(s.T())
		backend := mocks.NewMockBackend(ctrl)
		raw := mintToken(s.T(), domain.RoleAdmin, claims)

		backend.EXPECT().
			FetchProfile(gomock.Any(), domain.RoleAdmin, gomock.Not(gomock.Eq(raw))).
			Return(&domain.Identity{ID: "a1", Role: domain.RoleAdmin, ProfileImage: "https://cdn.example.com/a1.png"}, nil)

		src := gateway.NewBackendSource(backend, s.clock)
		identity, err := src.Resolve(ctx, gateway.Credentials{AuthToken: raw})
		s.Require().NoError(err)
		s.Equal("https://cdn.example.com/a1.png", identity.ProfileImage)
	})

	s.Run("retries with alternate admin prefix on role rejection", func() {
		ctrl := gomock.NewController(s.T())
		backend := mocks.NewMockBackend(ctrl)
		raw := mintToken(s.T(), domain.RoleAdmin, claims)

		gomock.InOrder(
			backend.EXPECT().
				FetchProfile(gomock.Any(), domain.RoleAdmin, gomock.Any()).
				Return(nil, dErrors.New(dErrors.CodeInsufficientRole, "backend rejected credentials")),
			backend.EXPECT().
				FetchProfile(gomock.Any(), domain.RoleSuperAdmin, gomock.Any()).
				Return(&domain.Identity{ID: "a1", Role: domain.RoleSuperAdmin}, nil),
		)

		src := gateway.NewBackendSource(backend, s.clock)
		identity, err := src.Resolve(ctx, gateway.Credentials{AuthToken: raw})
		s.Require().NoError(err)
		s.Equal(domain.RoleSuperAdmin, identity.Role)
	})

	s.Run("role rejection on both prefixes is terminal", func() {
		ctrl := gomock.NewController(s.T())
		backend := mocks.NewMockBackend(ctrl)
		raw := mintToken(s.T(), domain.RoleSuperAdmin, jwt.MapClaims{
			"userId": "a1",
			"role":   "superAdmin",
			"exp":    s.now.Add(time.Hour).Unix(),
		})

		rejected := dErrors.New(dErrors.CodeInsufficientRole, "backend rejected credentials")
		gomock.InOrder(
			backend.EXPECT().
				FetchProfile(gomock.Any(), domain.RoleSuperAdmin, gomock.Any()).
				Return(nil, rejected),
			backend.EXPECT().
				FetchProfile(gomock.Any(), domain.RoleAdmin, gomock.Any()).
				Return(nil, rejected),
		)

		src := gateway.NewBackendSource(backend, s.clock)
		_, err := src.Resolve(ctx, gateway.Credentials{AuthToken: raw})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientRole))
	})

	s.Run("user role is not retried", func() {
		ctrl := gomock.NewController(s.T())
		backend := mocks.NewMockBackend(ctrl)
		raw := mintToken(s.T(), domain.RoleUser, jwt.MapClaims{
			"userId": "u1",
			"role":   "user",
			"exp":    s.now.Add(time.Hour).Unix(),
		})

		backend.EXPECT().
			FetchProfile(gomock.Any(), domain.RoleUser, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInsufficientRole, "backend rejected credentials"))

		src := gateway.NewBackendSource(backend, s.clock)
		_, err := src.Resolve(ctx, gateway.Credentials{AuthToken: raw})
		s.Require().Error(err)
	})

	s.Run("degrades to token identity when backend is down", func() {
		ctrl := gomock.NewController(s.T())
		backend := mocks.NewMockBackend(ctrl)
		raw := mintToken(s.T(), domain.RoleAdmin, claims)

		backend.EXPECT().
			FetchProfile(gomock.Any(), domain.RoleAdmin, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUpstreamUnavailable, "backend unreachable"))

		src := gateway.NewBackendSource(backend, s.clock)
		identity, err := src.Resolve(ctx, gateway.Credentials{AuthToken: raw})
		s.Require().NoError(err)
		s.Equal("a1", identity.ID)
		s.Equal("a1@example.com", identity.Email)
		s.Empty(identity.ProfileImage, "degraded identity carries only token claims")
	})

	s.Run("expired token never reaches the backend", func() {
		ctrl := gomock.NewController(s.T())
		backend := mocks.NewMockBackend(ctrl)
		raw := mintToken(s.T(), domain.RoleAdmin, jwt.MapClaims{
			"userId": "a1",
			"role":   "admin",
			"exp":    s.now.Add(-time.Minute).Unix(),
		})

		src := gateway.NewBackendSource(backend, s.clock)
		_, err := src.Resolve(ctx, gateway.Credentials{AuthToken: raw})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeExpiredToken))
	})
}
