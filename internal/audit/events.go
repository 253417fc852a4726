// Package audit records security events emitted by the identity gateway and
// the client SDK. Events are observability, not control flow: emitters never
// return errors to callers and must not block request handling.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType classifies a security event.
type EventType string

const (
	EventAuthSuccess     EventType = "auth_success"
	EventAuthFailure     EventType = "auth_failure"
	EventTokenMalformed  EventType = "token_malformed"
	EventTokenExpired    EventType = "token_expired"
	EventRoleDenied      EventType = "role_denied"
	EventAdminDenied     EventType = "admin_denied"
	EventRateLimited     EventType = "rate_limited"
	EventSessionCreated  EventType = "session_created"
	EventSessionExtended EventType = "session_extended"
	EventLogout          EventType = "logout"
	EventOAuthLogin      EventType = "oauth_login"
	EventOAuthRejected   EventType = "oauth_rejected"
	EventCrossTabSync    EventType = "cross_tab_sync"
)

// Event is a single security observation.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Path      string    `json:"path,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// NewEvent stamps an event with an id and timestamp.
func NewEvent(typ EventType) Event {
	return Event{
		ID:   uuid.NewString(),
		Type: typ,
		At:   time.Now().UTC(),
	}
}

// Emitter accepts events. Implementations swallow their own failures.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, ev Event)

func (f EmitterFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

// Fanout forwards each event to every emitter in order.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, ev Event) {
	for _, e := range f {
		if e != nil {
			e.Emit(ctx, ev)
		}
	}
}

// Nop discards all events. Useful as a default so callers never nil-check.
var Nop = EmitterFunc(func(context.Context, Event) {})
