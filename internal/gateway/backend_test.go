package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storegate/internal/gateway"
	"storegate/pkg/domain"
	dErrors "storegate/pkg/domainerrors"
)

func TestHTTPBackendFetchProfile(t *testing.T) {
	t.Run("sends role-prefixed authorization header", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			assert.Equal(t, "/users/profile", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]any{
				"user": map[string]any{"id": "u1", "email": "u1@example.com", "role": "superAdmin"},
			})
		}))
		defer srv.Close()

		b := gateway.NewHTTPBackend(srv.URL)
		identity, err := b.FetchProfile(context.Background(), domain.RoleSuperAdmin, "raw.jwt.here")
		require.NoError(t, err)
		assert.Equal(t, "superAdmin raw.jwt.here", gotAuth)
		assert.Equal(t, "u1", identity.ID)
		assert.Equal(t, domain.RoleSuperAdmin, identity.Role)
	})

	t.Run("maps 401 and 403 to insufficient role", func(t *testing.T) {
		for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
			}))
			b := gateway.NewHTTPBackend(srv.URL)
			_, err := b.FetchProfile(context.Background(), domain.RoleAdmin, "tok")
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientRole), "status %d", status)
			srv.Close()
		}
	})

	t.Run("maps 5xx to upstream unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		b := gateway.NewHTTPBackend(srv.URL)
		_, err := b.FetchProfile(context.Background(), domain.RoleUser, "tok")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable))
	})

	t.Run("maps connection failure to upstream unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		srv.Close() // refuse connections

		b := gateway.NewHTTPBackend(srv.URL)
		_, err := b.FetchProfile(context.Background(), domain.RoleUser, "tok")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable))
	})
}

func TestHTTPBackendLogin(t *testing.T) {
	t.Run("forwards provider identity and decodes tokens", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/auth/oauth-login", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var req gateway.LoginRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "u1@example.com", req.Email)
			assert.Equal(t, "google", req.Provider)

			json.NewEncoder(w).Encode(gateway.LoginResult{
				User:         domain.Identity{ID: "u1", Email: req.Email, Role: domain.RoleUser},
				Token:        "user new.jwt.token",
				RefreshToken: "refresh.jwt.token",
			})
		}))
		defer srv.Close()

		b := gateway.NewHTTPBackend(srv.URL)
		result, err := b.Login(context.Background(), gateway.LoginRequest{
			Email:    "u1@example.com",
			Name:     "User One",
			Provider: "google",
			IDToken:  "provider.id.token",
		})
		require.NoError(t, err)
		assert.Equal(t, "u1", result.User.ID)
		assert.Equal(t, "user new.jwt.token", result.Token)
		assert.Equal(t, "refresh.jwt.token", result.RefreshToken)
	})

	t.Run("maps 4xx rejection to no credentials", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		b := gateway.NewHTTPBackend(srv.URL)
		_, err := b.Login(context.Background(), gateway.LoginRequest{Email: "x@example.com"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNoCredentials))
	})
}
