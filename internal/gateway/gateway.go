// Package gateway resolves caller identity for inbound requests. Identity can
// come from four uncoordinated places (server session, JWT cookie, OAuth
// payload, role-prefixed bearer token); the gateway models them as an ordered
// chain of sources tried cheapest-and-most-trustworthy first.
package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storegate/internal/audit"
	"storegate/pkg/domain"
	dErrors "storegate/pkg/domainerrors"
)

var resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "storegate_identity_resolutions_total",
	Help: "Identity resolution attempts by source and outcome",
}, []string{"source", "outcome"})

// Cookie names shared between the gateway and the OAuth callback.
const (
	SessionCookie = "session"
	TokenCookie   = "auth_token"
	RefreshCookie = "refresh_token"
)

// Credentials is everything a single inbound request offers as proof of
// identity, plus the request metadata security events record.
type Credentials struct {
	SessionID string
	AuthToken string
	Path      string
	IPAddress string
	UserAgent string
}

// CredentialsFromRequest extracts credentials from cookies. Missing cookies
// yield empty fields; the chain decides what that means.
func CredentialsFromRequest(r *http.Request) Credentials {
	creds := Credentials{
		Path:      r.URL.Path,
		UserAgent: r.Header.Get("User-Agent"),
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		creds.SessionID = c.Value
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		creds.AuthToken = c.Value
	}
	return creds
}

// Source is one step in the resolution chain. Returning (nil, nil) means
// "not applicable, try the next source"; an error is terminal for the whole
// chain; an identity is success.
type Source interface {
	Name() string
	Resolve(ctx context.Context, creds Credentials) (*domain.Identity, error)
}

// Resolver runs the source chain for a request.
type Resolver struct {
	sources []Source
	logger  *slog.Logger
	events  audit.Emitter
	tracer  trace.Tracer
}

// NewResolver composes sources in priority order.
func NewResolver(logger *slog.Logger, events audit.Emitter, sources ...Source) *Resolver {
	if events == nil {
		events = audit.Nop
	}
	return &Resolver{
		sources: sources,
		logger:  logger,
		events:  events,
		tracer:  otel.Tracer("storegate/gateway"),
	}
}

// Resolve walks the chain. Every outcome is counted and logged; failures are
// coded so the transport layer can translate them without string matching.
func (r *Resolver) Resolve(ctx context.Context, creds Credentials) (*domain.Identity, error) {
	ctx, span := r.tracer.Start(ctx, "gateway.Resolve")
	defer span.End()

	for _, src := range r.sources {
		identity, err := src.Resolve(ctx, creds)
		if err != nil {
			resolutionsTotal.WithLabelValues(src.Name(), "denied").Inc()
			span.SetAttributes(
				attribute.String("auth.source", src.Name()),
				attribute.String("auth.outcome", "denied"),
			)
			r.emitFailure(ctx, src.Name(), creds, err)
			return nil, err
		}
		if identity != nil {
			resolutionsTotal.WithLabelValues(src.Name(), "success").Inc()
			span.SetAttributes(
				attribute.String("auth.source", src.Name()),
				attribute.String("auth.outcome", "success"),
			)
			ev := audit.NewEvent(audit.EventAuthSuccess)
			ev.Path = creds.Path
			ev.UserID = identity.ID
			ev.IPAddress = creds.IPAddress
			ev.UserAgent = creds.UserAgent
			ev.Detail = src.Name()
			r.events.Emit(ctx, ev)
			return identity, nil
		}
	}

	resolutionsTotal.WithLabelValues("none", "no_credentials").Inc()
	span.SetAttributes(attribute.String("auth.outcome", "no_credentials"))
	err := dErrors.New(dErrors.CodeNoCredentials, "no credentials presented")
	r.emitFailure(ctx, "none", creds, err)
	return nil, err
}

func (r *Resolver) emitFailure(ctx context.Context, source string, creds Credentials, err error) {
	typ := audit.EventAuthFailure
	switch dErrors.CodeOf(err) {
	case dErrors.CodeMalformedToken:
		typ = audit.EventTokenMalformed
	case dErrors.CodeExpiredToken:
		typ = audit.EventTokenExpired
	case dErrors.CodeInsufficientRole:
		typ = audit.EventRoleDenied
	}
	ev := audit.NewEvent(typ)
	ev.Path = creds.Path
	ev.IPAddress = creds.IPAddress
	ev.UserAgent = creds.UserAgent
	ev.Detail = err.Error()
	r.events.Emit(ctx, ev)

	r.logger.WarnContext(ctx, "identity resolution failed",
		"source", source,
		"path", creds.Path,
		"error", err,
	)
}
