// Package session owns the server-side session registry: TTL-bounded
// identity records keyed by an opaque id. Stores are interchangeable: the
// in-memory map suits a single process, Redis and Postgres back multi-instance
// deployments. No other component mutates a Session directly.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/mssola/useragent"

	"storegate/pkg/domain"
)

// Session is a server-owned identity record. Valid iff now < ExpiresAt.
type Session struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	Role      domain.Role `json:"role"`
	IPAddress string      `json:"ip_address"`
	UserAgent string      `json:"user_agent"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Identity projects the session onto the shared identity shape.
func (s *Session) Identity() domain.Identity {
	return domain.Identity{
		ID:    s.UserID,
		Email: s.Email,
		Name:  s.Name,
		Role:  s.Role,
	}
}

// ExpiredAt reports whether the session is expired relative to now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Device returns a human-readable device identifier based on the User-Agent
// string. Returns "Unknown device" if the User-Agent is empty or unparseable.
func (s *Session) Device() string {
	if s.UserAgent == "" {
		return "Unknown device"
	}
	ua := useragent.New(s.UserAgent)
	name, version := ua.Browser()
	if name == "" {
		return "Unknown device"
	}
	os := ua.OSInfo().Name
	if os == "" {
		os = "unknown OS"
	}
	kind := "desktop"
	if ua.Mobile() {
		kind = "mobile"
	}
	if ua.Bot() {
		return "Bot: " + name
	}
	if version != "" {
		name = name + "/" + version
	}
	return name + " (" + os + ", " + kind + ")"
}

// newID generates a cryptographically unpredictable session identifier:
// 32 random bytes, base64url without padding.
func newID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
