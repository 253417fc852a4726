package gateway

import (
	"context"
	"errors"
	"time"

	"storegate/internal/session"
	"storegate/pkg/domain"
	dErrors "storegate/pkg/domainerrors"
	"storegate/pkg/platform/sentinel"
	"storegate/pkg/token"
)

// SessionSource resolves identity from the server-side session store. This is
// the cheapest and most trustworthy source: the record never left the server.
// A stale or unknown session id falls through to the next source instead of
// failing the chain, because the caller may still hold a valid token.
type SessionSource struct {
	store session.Store
}

// NewSessionSource builds a session-backed source.
func NewSessionSource(store session.Store) *SessionSource {
	return &SessionSource{store: store}
}

func (s *SessionSource) Name() string { return "session" }

func (s *SessionSource) Resolve(ctx context.Context, creds Credentials) (*domain.Identity, error) {
	if creds.SessionID == "" {
		return nil, nil
	}

	sess, err := s.store.Get(ctx, creds.SessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		// Store outage must not lock everyone out; the token source can
		// still vouch for the caller.
		return nil, nil
	}

	identity := sess.Identity()
	return &identity, nil
}

// CookieTokenSource resolves identity from the httpOnly JWT cookie. Unlike a
// stale session id, a present-but-bad token is a terminal failure: the caller
// claimed a credential and it did not hold up.
type CookieTokenSource struct {
	clock func() time.Time
}

// NewCookieTokenSource builds a token-cookie source.
func NewCookieTokenSource(clock func() time.Time) *CookieTokenSource {
	if clock == nil {
		clock = time.Now
	}
	return &CookieTokenSource{clock: clock}
}

func (s *CookieTokenSource) Name() string { return "token_cookie" }

func (s *CookieTokenSource) Resolve(_ context.Context, creds Credentials) (*domain.Identity, error) {
	if creds.AuthToken == "" {
		return nil, nil
	}

	payload := token.Decode(creds.AuthToken)
	if payload == nil {
		return nil, dErrors.New(dErrors.CodeMalformedToken, "invalid token format")
	}
	if token.IsExpired(payload, s.clock()) {
		return nil, dErrors.New(dErrors.CodeExpiredToken, "token expired")
	}

	return &domain.Identity{
		ID:    payload.UserID,
		Email: payload.Email,
		Name:  payload.Name,
		Role:  payload.Role,
	}, nil
}

// BackendSource re-validates the token against the backend profile endpoint
// and returns the richer profile. Used on admin surfaces where a decoded
// claim is not enough. When the backend is unreachable it degrades to the
// token-derived identity rather than failing the request; a role rejection
// is retried once with the alternate admin prefix before giving up.
type BackendSource struct {
	backend Backend
	clock   func() time.Time
}

// NewBackendSource builds a backend-validating source.
func NewBackendSource(backend Backend, clock func() time.Time) *BackendSource {
	if clock == nil {
		clock = time.Now
	}
	return &BackendSource{backend: backend, clock: clock}
}

func (s *BackendSource) Name() string { return "backend" }

func (s *BackendSource) Resolve(ctx context.Context, creds Credentials) (*domain.Identity, error) {
	if creds.AuthToken == "" {
		return nil, nil
	}

	payload := token.Decode(creds.AuthToken)
	if payload == nil {
		return nil, dErrors.New(dErrors.CodeMalformedToken, "invalid token format")
	}
	if token.IsExpired(payload, s.clock()) {
		return nil, dErrors.New(dErrors.CodeExpiredToken, "token expired")
	}

	role := payload.Role
	if !role.IsValid() {
		role = domain.RoleUser
	}
	_, bare := token.StripRolePrefix(creds.AuthToken)

	identity, err := s.backend.FetchProfile(ctx, role, bare)
	if err == nil {
		return identity, nil
	}

	// The backend's role-prefixed bearer scheme sometimes rejects the
	// primary prefix for accounts holding the other admin tier. One retry
	// with the alternate prefix, then accept the verdict.
	if alt, ok := alternateAdminRole(role); ok && dErrors.HasCode(err, dErrors.CodeInsufficientRole) {
		if identity, retryErr := s.backend.FetchProfile(ctx, alt, bare); retryErr == nil {
			return identity, nil
		}
		return nil, err
	}

	if dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable) {
		// Degrade to the token-derived minimal profile; a fresh backend
		// decision is only mandatory at initial login.
		return &domain.Identity{
			ID:    payload.UserID,
			Email: payload.Email,
			Name:  payload.Name,
			Role:  payload.Role,
		}, nil
	}

	return nil, err
}

func alternateAdminRole(r domain.Role) (domain.Role, bool) {
	switch r {
	case domain.RoleAdmin:
		return domain.RoleSuperAdmin, true
	case domain.RoleSuperAdmin:
		return domain.RoleAdmin, true
	default:
		return "", false
	}
}
