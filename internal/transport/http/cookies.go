package http

import (
	"net/http"
	"time"

	"storegate/internal/gateway"
)

const (
	authTokenTTL    = 24 * time.Hour
	refreshTokenTTL = 7 * 24 * time.Hour
)

// setLoginCookies issues the credential cookies after a successful login.
// All three are httpOnly: scripts never read credentials directly, they ask
// the session endpoints.
func (h *handlers) setLoginCookies(w http.ResponseWriter, token, refreshToken, sessionID string) {
	h.setCookie(w, gateway.TokenCookie, token, authTokenTTL)
	if refreshToken != "" {
		h.setCookie(w, gateway.RefreshCookie, refreshToken, refreshTokenTTL)
	}
	h.setCookie(w, gateway.SessionCookie, sessionID, authTokenTTL)
}

// clearLoginCookies expires all credential cookies. Logout must clear every
// one of them even if the session record is already gone.
func (h *handlers) clearLoginCookies(w http.ResponseWriter) {
	for _, name := range []string{gateway.TokenCookie, gateway.RefreshCookie, gateway.SessionCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.deps.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (h *handlers) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   h.deps.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
