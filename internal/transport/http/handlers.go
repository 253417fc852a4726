package http

import (
	"errors"
	"net/http"

	"storegate/internal/audit"
	"storegate/internal/gateway"
	"storegate/internal/oauth"
	"storegate/pkg/domain"
	dErrors "storegate/pkg/domainerrors"
	"storegate/pkg/platform/httputil"
	"storegate/pkg/platform/middleware/metadata"
	"storegate/pkg/platform/sentinel"
)

type handlers struct {
	deps Deps
}

type userResponse struct {
	Success bool            `json:"success"`
	User    domain.Identity `json:"user"`
}

type extendResponse struct {
	Success   bool  `json:"success"`
	ExpiresAt int64 `json:"expiresAt"`
}

func (h *handlers) credentials(r *http.Request) gateway.Credentials {
	creds := gateway.CredentialsFromRequest(r)
	creds.IPAddress = metadata.ClientIP(r.Context())
	return creds
}

func (h *handlers) sessionCheck(w http.ResponseWriter, r *http.Request) {
	identity, err := h.deps.Resolver.Resolve(r.Context(), h.credentials(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, userResponse{Success: true, User: *identity})
}

func (h *handlers) sessionExtend(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(gateway.SessionCookie)
	if err != nil || cookie.Value == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNoCredentials, "no session cookie"))
		return
	}

	sess, err := h.deps.Sessions.Extend(r.Context(), cookie.Value, 0)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		httputil.WriteError(w, dErrors.New(dErrors.CodeNoCredentials, "session not found"))
		return
	case errors.Is(err, sentinel.ErrExpired):
		httputil.WriteError(w, dErrors.New(dErrors.CodeExpiredToken, "session expired"))
		return
	case err != nil:
		h.deps.Logger.ErrorContext(r.Context(), "session extend failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "extend session", err))
		return
	}

	ev := audit.NewEvent(audit.EventSessionExtended)
	ev.Path = r.URL.Path
	ev.UserID = sess.UserID
	ev.IPAddress = metadata.ClientIP(r.Context())
	ev.UserAgent = metadata.UserAgent(r.Context())
	h.deps.Events.Emit(r.Context(), ev)

	httputil.WriteJSON(w, http.StatusOK, extendResponse{Success: true, ExpiresAt: sess.ExpiresAt.Unix()})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	ev := audit.NewEvent(audit.EventLogout)
	ev.Path = r.URL.Path
	ev.IPAddress = metadata.ClientIP(r.Context())
	ev.UserAgent = metadata.UserAgent(r.Context())

	if cookie, err := r.Cookie(gateway.SessionCookie); err == nil && cookie.Value != "" {
		if sess, err := h.deps.Sessions.Get(r.Context(), cookie.Value); err == nil {
			ev.UserID = sess.UserID
		}
		if err := h.deps.Sessions.Delete(r.Context(), cookie.Value); err != nil {
			// Cookies are cleared regardless; a dangling record is reaped by
			// the sweeper.
			h.deps.Logger.WarnContext(r.Context(), "session delete failed", "error", err)
		}
	}

	h.deps.Events.Emit(r.Context(), ev)
	h.clearLoginCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// adminProfile serves the admin surface. Every denial, whatever its cause,
// is a bare 404 indistinguishable from a missing route: probing must learn
// nothing, not even that the surface exists.
func (h *handlers) adminProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := metadata.ClientIP(ctx)

	if h.deps.Limiter != nil {
		result, err := h.deps.Limiter.Allow(ctx, ip)
		if err != nil {
			// Fail open: a broken counter store must not block admins.
			h.deps.Logger.WarnContext(ctx, "rate limiter unavailable", "error", err)
		} else if !result.Allowed {
			ev := audit.NewEvent(audit.EventRateLimited)
			ev.Path = r.URL.Path
			ev.IPAddress = ip
			ev.UserAgent = metadata.UserAgent(ctx)
			h.deps.Events.Emit(ctx, ev)

			http.NotFound(w, r)
			return
		}
	}

	identity, err := h.deps.AdminResolver.Resolve(ctx, h.credentials(r))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if !identity.Role.IsAdmin() {
		ev := audit.NewEvent(audit.EventAdminDenied)
		ev.Path = r.URL.Path
		ev.UserID = identity.ID
		ev.IPAddress = ip
		ev.UserAgent = metadata.UserAgent(ctx)
		ev.Detail = string(identity.Role)
		h.deps.Events.Emit(ctx, ev)

		http.NotFound(w, r)
		return
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	httputil.WriteJSON(w, http.StatusOK, userResponse{Success: true, User: *identity})
}

func (h *handlers) oauthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := oauth.CallbackParams{
		Code:          q.Get("code"),
		ProviderError: q.Get("error"),
		ReturnURL:     q.Get("returnUrl"),
		IPAddress:     metadata.ClientIP(r.Context()),
		UserAgent:     metadata.UserAgent(r.Context()),
	}

	result, err := h.deps.Flow.Callback(r.Context(), params)
	if err != nil {
		// No cookies on any failure path.
		http.Redirect(w, r, oauth.SigninErrorRedirect(err), http.StatusFound)
		return
	}

	h.setLoginCookies(w, result.Token, result.RefreshToken, result.SessionID)
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}
