package authclient

import (
	"context"

	"storegate/pkg/domain"
)

// GuestGuard gates guest-only surfaces (signin, signup): an authenticated
// visitor is sent to their role's landing page instead of seeing the form
// again. Unlike Guard it treats every verification failure as success —
// a signed-out visitor is exactly who the surface is for.
type GuestGuard struct {
	client *Client
	state  *State
}

// NewGuestGuard wires a guest guard.
func NewGuestGuard(client *Client, state *State) *GuestGuard {
	return &GuestGuard{client: client, state: state}
}

// GuestVerdict is the outcome of a guest check.
type GuestVerdict struct {
	// Allowed is true when the guest surface may render.
	Allowed bool
	// Redirect is the landing page for an already-authenticated visitor.
	Redirect string
}

// Verify checks whether the visitor is already signed in. The session probe
// is authoritative; the local mirror alone never blocks a guest page, because
// stale mirror state must not lock a signed-out user out of signin.
func (g *GuestGuard) Verify(ctx context.Context) GuestVerdict {
	identity, err := g.client.CheckSession(ctx)
	if err != nil {
		return GuestVerdict{Allowed: true}
	}

	g.state.SetIdentity(*identity, g.state.Token())
	return GuestVerdict{Redirect: landingPage(identity.Role)}
}

func landingPage(role domain.Role) string {
	if role.IsAdmin() {
		return "/admin"
	}
	return "/"
}
