package oauth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"storegate/internal/audit"
	"storegate/internal/gateway"
	"storegate/internal/session"
	"storegate/pkg/domain"
	dErrors "storegate/pkg/domainerrors"
)

// BootstrapParam is the query parameter name carrying the sealed identity on
// the post-login redirect.
const BootstrapParam = "bootstrap"

// CallbackParams is what the callback handler extracts from the request.
// ProviderError carries the provider's error query parameter when the user
// (or the provider itself) refused authorization at the consent screen.
type CallbackParams struct {
	Code          string
	ProviderError string
	ReturnURL     string
	IPAddress     string
	UserAgent     string
}

// errProviderDenied marks a callback the provider answered with an error
// parameter instead of a code.
var errProviderDenied = dErrors.New(dErrors.CodeNoCredentials, "provider denied authorization")

// CallbackResult carries everything the handler needs to finish the login:
// cookie values and the redirect target with its sealed bootstrap parameter.
type CallbackResult struct {
	Identity     domain.Identity
	Token        string
	RefreshToken string
	SessionID    string
	RedirectURL  string
}

// Flow runs the full callback sequence: provider exchange, backend login,
// server-side session creation, sealed-parameter redirect. Any failure before
// the backend issues tokens means NO cookies are set; a half-authenticated
// browser is worse than a signed-out one.
type Flow struct {
	provider Provider
	backend  gateway.Backend
	sessions session.Store
	sealer   *Sealer
	events   audit.Emitter
	logger   *slog.Logger
}

// NewFlow wires the callback flow.
func NewFlow(provider Provider, backend gateway.Backend, sessions session.Store, sealer *Sealer, events audit.Emitter, logger *slog.Logger) *Flow {
	if events == nil {
		events = audit.Nop
	}
	return &Flow{
		provider: provider,
		backend:  backend,
		sessions: sessions,
		sealer:   sealer,
		events:   events,
		logger:   logger,
	}
}

// Callback executes the flow. The returned error's code tells the handler
// which signin error to redirect with; the handler must not set cookies on
// any error path.
func (f *Flow) Callback(ctx context.Context, params CallbackParams) (*CallbackResult, error) {
	if params.ProviderError != "" {
		f.reject(ctx, params, "provider denied: "+params.ProviderError)
		return nil, errProviderDenied
	}
	if params.Code == "" {
		f.reject(ctx, params, "missing authorization code")
		return nil, dErrors.New(dErrors.CodeBadRequest, "missing authorization code")
	}

	providerID, err := f.provider.Exchange(ctx, params.Code)
	if err != nil {
		f.reject(ctx, params, "code exchange failed")
		return nil, err
	}
	if providerID.IDToken == "" {
		f.reject(ctx, params, "provider returned no id token")
		return nil, dErrors.New(dErrors.CodeNoCredentials, "provider returned no id token")
	}

	login, err := f.backend.Login(ctx, gateway.LoginRequest{
		Email:        providerID.Email,
		Name:         providerID.Name,
		ProfileImage: providerID.Picture,
		Provider:     f.provider.Name(),
		IDToken:      providerID.IDToken,
	})
	if err != nil {
		f.reject(ctx, params, "backend login failed")
		return nil, err
	}

	sess, err := f.sessions.Create(ctx, session.CreateParams{
		UserID:    login.User.ID,
		Email:     login.User.Email,
		Name:      login.User.Name,
		Role:      string(login.User.Role),
		IPAddress: params.IPAddress,
		UserAgent: params.UserAgent,
	})
	if err != nil {
		f.reject(ctx, params, "session creation failed")
		return nil, err
	}

	redirect, err := f.redirectURL(login.User, params.ReturnURL)
	if err != nil {
		return nil, err
	}

	ev := audit.NewEvent(audit.EventOAuthLogin)
	ev.UserID = login.User.ID
	ev.IPAddress = params.IPAddress
	ev.UserAgent = params.UserAgent
	ev.Detail = f.provider.Name()
	f.events.Emit(ctx, ev)

	f.logger.InfoContext(ctx, "oauth login completed",
		"provider", f.provider.Name(),
		"user_id", login.User.ID,
		"role", login.User.Role,
	)

	return &CallbackResult{
		Identity:     login.User,
		Token:        login.Token,
		RefreshToken: login.RefreshToken,
		SessionID:    sess.ID,
		RedirectURL:  redirect,
	}, nil
}

// redirectURL picks the landing page and attaches the sealed bootstrap
// parameter. Only same-site relative return URLs are honored; anything else
// falls back to the role default.
func (f *Flow) redirectURL(user domain.Identity, returnURL string) (string, error) {
	target := sanitizeReturnURL(returnURL)
	if target == "" {
		if user.Role.IsAdmin() {
			target = "/admin"
		} else {
			target = "/"
		}
	}

	sealed, err := f.sealer.Seal(Bootstrap{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Role:   user.Role,
	})
	if err != nil {
		return "", err
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "parse redirect target", err)
	}
	q := u.Query()
	q.Set(BootstrapParam, sealed)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// sanitizeReturnURL accepts only rooted relative paths. "//host" and absolute
// URLs would make the callback an open redirector.
func sanitizeReturnURL(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return ""
	}
	if strings.Contains(raw, "\\") {
		return ""
	}
	return raw
}

func (f *Flow) reject(ctx context.Context, params CallbackParams, detail string) {
	ev := audit.NewEvent(audit.EventOAuthRejected)
	ev.IPAddress = params.IPAddress
	ev.UserAgent = params.UserAgent
	ev.Detail = detail
	f.events.Emit(ctx, ev)

	f.logger.WarnContext(ctx, "oauth callback rejected", "reason", detail)
}

// SigninErrorRedirect maps a callback failure to the signin redirect target.
// Exported for the handler; errors never leak internals into the URL.
func SigninErrorRedirect(err error) string {
	if errors.Is(err, errProviderDenied) {
		return "/signin?error=provider_denied"
	}
	code := "login_failed"
	switch dErrors.CodeOf(err) {
	case dErrors.CodeNoCredentials:
		code = "no_token"
	case dErrors.CodeUpstreamUnavailable:
		code = "provider_unavailable"
	case dErrors.CodeBadRequest:
		code = "invalid_request"
	}
	return "/signin?error=" + code
}

var _ Provider = (*OIDCProvider)(nil)
