// Package http is the service's HTTP surface: session lifecycle endpoints,
// the hardened admin profile proxy, and the OAuth callback.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storegate/internal/audit"
	"storegate/internal/gateway"
	"storegate/internal/oauth"
	"storegate/internal/ratelimit"
	"storegate/internal/session"
	"storegate/pkg/platform/middleware/metadata"
)

// Deps is everything the router needs. AdminResolver differs from Resolver by
// ending in a backend-validating source; plain session endpoints never call
// the backend.
type Deps struct {
	Logger        *slog.Logger
	Sessions      session.Store
	Resolver      *gateway.Resolver
	AdminResolver *gateway.Resolver
	Limiter       ratelimit.Limiter
	Flow          *oauth.Flow
	Events        audit.Emitter
	SecureCookies bool
}

// New builds the full router.
func New(deps Deps) http.Handler {
	if deps.Events == nil {
		deps.Events = audit.Nop
	}
	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/session-check", h.sessionCheck)
	r.Post("/session-extend", h.sessionExtend)
	r.Post("/logout", h.logout)
	r.Get("/admin/profile", h.adminProfile)
	r.Get("/oauth/callback", h.oauthCallback)

	return r
}
