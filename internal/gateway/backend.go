package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"storegate/pkg/domain"
	dErrors "storegate/pkg/domainerrors"
)

// Backend is the upstream service that actually authenticates credentials
// and issues tokens. The gateway only proxies and re-validates.
//
//go:generate mockgen -source=backend.go -destination=mocks/mocks.go -package=mocks
type Backend interface {
	// FetchProfile retrieves the caller's profile using the role-prefixed
	// bearer scheme: Authorization: "<role> <token>".
	FetchProfile(ctx context.Context, role domain.Role, token string) (*domain.Identity, error)

	// Login exchanges a provider identity for backend-issued tokens during
	// the OAuth callback.
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
}

// LoginRequest forwards the OAuth provider's identity to the backend.
type LoginRequest struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	ProfileImage string `json:"profileImage,omitempty"`
	Provider     string `json:"provider"`
	IDToken      string `json:"idToken"`
}

// LoginResult carries the backend-issued credentials.
type LoginResult struct {
	User         domain.Identity `json:"user"`
	Token        string          `json:"token"`
	RefreshToken string          `json:"refreshToken,omitempty"`
}

// HTTPBackend talks to the backend over HTTP. Every call carries a timeout;
// the gateway never blocks a page render on an unbounded upstream call.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// HTTPBackendOption configures an HTTPBackend.
type HTTPBackendOption func(*HTTPBackend)

// WithHTTPClient replaces the default client (used by tests).
func WithHTTPClient(c *http.Client) HTTPBackendOption {
	return func(b *HTTPBackend) {
		if c != nil {
			b.client = c
		}
	}
}

// WithTimeout sets the per-call timeout. Default 5s.
func WithTimeout(d time.Duration) HTTPBackendOption {
	return func(b *HTTPBackend) {
		if d > 0 {
			b.client.Timeout = d
		}
	}
}

// NewHTTPBackend constructs the production backend client.
func NewHTTPBackend(baseURL string, opts ...HTTPBackendOption) *HTTPBackend {
	b := &HTTPBackend{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *HTTPBackend) FetchProfile(ctx context.Context, role domain.Role, token string) (*domain.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/users/profile", nil)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "build profile request", err)
	}
	// Non-standard by design: the backend routes on "<role> <token>", not
	// "Bearer <token>". Reproduce exactly for compatibility.
	req.Header.Set("Authorization", fmt.Sprintf("%s %s", role, token))

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUpstreamUnavailable, "backend unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var body struct {
			User domain.Identity `json:"user"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, dErrors.Wrap(dErrors.CodeUpstreamUnavailable, "decode profile response", err)
		}
		return &body.User, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, dErrors.New(dErrors.CodeInsufficientRole, "backend rejected credentials")
	case resp.StatusCode >= 500:
		return nil, dErrors.New(dErrors.CodeUpstreamUnavailable, "backend error")
	default:
		return nil, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("unexpected backend status %d", resp.StatusCode))
	}
}

func (b *HTTPBackend) Login(ctx context.Context, loginReq LoginRequest) (*LoginResult, error) {
	payload, err := json.Marshal(loginReq)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "encode login request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/auth/oauth-login", bytes.NewReader(payload))
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "build login request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUpstreamUnavailable, "backend unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		if resp.StatusCode >= 500 {
			return nil, dErrors.New(dErrors.CodeUpstreamUnavailable, "backend error")
		}
		return nil, dErrors.New(dErrors.CodeNoCredentials, "backend rejected login")
	}

	var result LoginResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUpstreamUnavailable, "decode login response", err)
	}
	return &result, nil
}
