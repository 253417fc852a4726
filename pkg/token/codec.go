// Package token decodes compact three-part signed tokens without verifying
// signatures. Signing and verification belong to the backend; this codec only
// extracts claims the gateway and client need for routing and expiry checks.
//
// Decode is deliberately total: any malformed input yields nil, never a panic
// or error, because a single bad cookie must not take down page rendering.
package token

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"storegate/pkg/domain"
)

// Payload is the decoded middle segment of a token. It is a point-in-time
// projection of the credential; never mutate it.
type Payload struct {
	UserID string      `json:"userId"`
	Role   domain.Role `json:"role"`
	Email  string      `json:"email,omitempty"`
	Name   string      `json:"name,omitempty"`
	// Exp is seconds since epoch. Zero means the token carries no expiry
	// claim and is treated as never expiring (a leniency, not a guarantee).
	Exp int64 `json:"exp,omitempty"`
}

// rolePrefixes are the non-standard prefixes the upstream stores in front of
// raw tokens for backend routing ("user <jwt>", "admin <jwt>",
// "superAdmin <jwt>"). Longest first so "superAdmin" wins over "user".
var rolePrefixes = []domain.Role{
	domain.RoleSuperAdmin,
	domain.RoleAdmin,
	domain.RoleUser,
}

// StripRolePrefix removes a known role prefix from a raw token value.
// Returns the detected role (empty if none) and the bare token.
func StripRolePrefix(raw string) (domain.Role, string) {
	for _, role := range rolePrefixes {
		prefix := string(role) + " "
		if rest, ok := strings.CutPrefix(raw, prefix); ok {
			return role, rest
		}
	}
	return "", raw
}

// Decode parses a compact token into its payload. The token may carry a role
// prefix; it is stripped before segment splitting. Returns nil on any
// malformed input: wrong segment count, undecodable base64, invalid JSON.
func Decode(raw string) *Payload {
	_, bare := StripRolePrefix(strings.TrimSpace(raw))
	if bare == "" {
		return nil
	}

	parts := strings.Split(bare, ".")
	if len(parts) != 3 {
		return nil
	}

	claims, err := decodeSegment(parts[1])
	if err != nil {
		return nil
	}

	var p Payload
	if err := json.Unmarshal(claims, &p); err != nil {
		return nil
	}
	return &p
}

// decodeSegment accepts both raw (unpadded) base64url and padded standard
// base64; real-world middles come unpadded but stored copies sometimes carry
// padding.
func decodeSegment(seg string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(seg); err == nil {
		return b, nil
	}
	if b, err := base64.URLEncoding.DecodeString(seg); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(seg)
}

// IsExpired reports whether the payload's exp claim is in the past relative
// to now. Comparisons use second-granularity Unix time; sub-second skew is
// ignored. A missing exp claim never expires.
func IsExpired(p *Payload, now time.Time) bool {
	if p == nil {
		return true
	}
	if p.Exp == 0 {
		return false
	}
	return p.Exp < now.Unix()
}

// RemainingLifetime returns the duration until expiry, zero if already
// expired, and a false flag when the token carries no expiry claim.
func RemainingLifetime(p *Payload, now time.Time) (time.Duration, bool) {
	if p == nil || p.Exp == 0 {
		return 0, false
	}
	d := time.Unix(p.Exp, 0).Sub(now)
	if d < 0 {
		return 0, true
	}
	return d, true
}
