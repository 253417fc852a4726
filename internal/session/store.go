package session

import (
	"context"
	"time"

	"storegate/pkg/domain"
	dErrors "storegate/pkg/domainerrors"
)

const (
	// DefaultTTL is the sliding validity window for new sessions.
	DefaultTTL = 24 * time.Hour

	// DefaultMaxLifetime is the absolute ceiling on cumulative extension,
	// measured from CreatedAt. Repeated extension never drifts past it.
	DefaultMaxLifetime = 7 * 24 * time.Hour
)

// CreateParams carries the fields captured at session creation.
type CreateParams struct {
	UserID    string
	Email     string
	Name      string
	Role      string
	IPAddress string
	UserAgent string
}

// Validate rejects caller errors before any storage work happens.
func (p CreateParams) Validate() error {
	if p.UserID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "userId is required")
	}
	if p.Email == "" {
		return dErrors.New(dErrors.CodeBadRequest, "email is required")
	}
	return nil
}

// Store is the persistence interface for sessions. Implementations must be
// safe for concurrent create/get/extend on the same key.
//
// Get returns sentinel.ErrNotFound for unknown AND expired sessions: expiry
// is lazy, expired records are never returned as valid. Extend returns
// sentinel.ErrExpired when asked to extend a session past its end; expired
// sessions are rejected, not revived.
type Store interface {
	Create(ctx context.Context, params CreateParams) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Extend(ctx context.Context, id string, extension time.Duration) (*Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteExpired reaps expired records and returns the count removed.
	DeleteExpired(ctx context.Context) (int64, error)
}

// domainRole maps the caller-supplied role string to a Role, defaulting to
// the least-privileged role when the value is unknown.
func domainRole(s string) domain.Role {
	r, err := domain.ParseRole(s)
	if err != nil {
		return domain.RoleUser
	}
	return r
}

// clampExpiry applies the absolute lifetime ceiling: a session never extends
// past createdAt+maxLifetime regardless of how often it is touched.
func clampExpiry(createdAt, proposed time.Time, maxLifetime time.Duration) time.Time {
	ceiling := createdAt.Add(maxLifetime)
	if proposed.After(ceiling) {
		return ceiling
	}
	return proposed
}
