package authclient

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"storegate/internal/audit"
	"storegate/internal/oauth"
	"storegate/pkg/domain"
	dErrors "storegate/pkg/domainerrors"
	"storegate/pkg/token"
)

// Status is the guard's externally visible state.
type Status string

const (
	StatusChecking     Status = "checking"
	StatusAuthorized   Status = "authorized"
	StatusUnauthorized Status = "unauthorized"
)

// DefaultRedirectDebounce suppresses redirect storms when several mounts fail
// verification at once.
const DefaultRedirectDebounce = 2 * time.Second

// Verdict is the outcome of one verification pass.
type Verdict struct {
	Status   Status
	Identity *domain.Identity
	// Redirect is non-empty when the caller should navigate away. Debounced:
	// concurrent failures produce one redirect, not one per mount.
	Redirect string
}

// VerifyRequest is the per-mount input to the guard.
type VerifyRequest struct {
	// BootstrapParam is the sealed identity from a post-login redirect, empty
	// on ordinary navigations.
	BootstrapParam string
	// ReturnURL is carried on the signin redirect so the user lands back
	// where they started.
	ReturnURL string
}

// Guard decides whether a protected surface may render. It tries, in order:
// the sealed bootstrap parameter, a server session probe, extend-and-reprobe,
// and finally the locally mirrored token (format, expiry, role) confirmed by
// a server verdict. Concurrent Verify calls share a single resolution.
type Guard struct {
	client     *Client
	state      *State
	sealer     *oauth.Sealer
	events     audit.Emitter
	logger     *slog.Logger
	required   domain.Role
	clock      func() time.Time
	signinPath string
	debounce   time.Duration

	group singleflight.Group

	mu           sync.Mutex
	status       Status
	lastRedirect time.Time
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithRequiredRole sets the minimum role the surface demands. Default user.
func WithRequiredRole(r domain.Role) GuardOption {
	return func(g *Guard) {
		if r.IsValid() {
			g.required = r
		}
	}
}

// WithSigninPath overrides the signin redirect target.
func WithSigninPath(path string) GuardOption {
	return func(g *Guard) {
		if path != "" {
			g.signinPath = path
		}
	}
}

// WithRedirectDebounce overrides the redirect debounce window.
func WithRedirectDebounce(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.debounce = d
		}
	}
}

// WithGuardClock sets the clock function for testability.
func WithGuardClock(clock func() time.Time) GuardOption {
	return func(g *Guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithGuardEvents attaches a security-event emitter.
func WithGuardEvents(events audit.Emitter) GuardOption {
	return func(g *Guard) {
		if events != nil {
			g.events = events
		}
	}
}

// NewGuard wires a guard. sealer may be nil when the deployment does not use
// sealed bootstrap parameters; that chain step is then skipped.
func NewGuard(client *Client, state *State, sealer *oauth.Sealer, logger *slog.Logger, opts ...GuardOption) *Guard {
	g := &Guard{
		client:     client,
		state:      state,
		sealer:     sealer,
		events:     audit.Nop,
		logger:     logger,
		required:   domain.RoleUser,
		clock:      time.Now,
		signinPath: "/signin",
		debounce:   DefaultRedirectDebounce,
		status:     StatusChecking,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Status returns the guard's current state.
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Verify runs the verification chain. Concurrent callers with in-flight
// verification share its result instead of issuing duplicate probes.
func (g *Guard) Verify(ctx context.Context, req VerifyRequest) Verdict {
	g.setStatus(StatusChecking)

	v, _, _ := g.group.Do("verify", func() (any, error) {
		return g.verify(ctx, req), nil
	})
	verdict := v.(Verdict)

	g.setStatus(verdict.Status)
	return verdict
}

func (g *Guard) verify(ctx context.Context, req VerifyRequest) Verdict {
	if identity := g.tryBootstrap(ctx, req.BootstrapParam); identity != nil {
		return g.authorized(ctx, identity, "bootstrap")
	}

	if identity, err := g.client.CheckSession(ctx); err == nil {
		if !identity.Role.Satisfies(g.required) {
			return g.unauthorized(ctx, req, audit.EventRoleDenied, string(identity.Role))
		}
		return g.authorized(ctx, identity, "session")
	}

	// The probe failed; an extend can revive a session the gateway still
	// holds but whose check raced its expiry window.
	if _, err := g.client.ExtendSession(ctx); err == nil {
		if identity, err := g.client.CheckSession(ctx); err == nil && identity.Role.Satisfies(g.required) {
			return g.authorized(ctx, identity, "session_extended")
		}
	}

	if identity := g.tryMirroredToken(ctx); identity != nil {
		if !identity.Role.Satisfies(g.required) {
			return g.unauthorized(ctx, req, audit.EventRoleDenied, string(identity.Role))
		}
		return g.authorized(ctx, identity, "mirrored_token")
	}

	return g.unauthorized(ctx, req, audit.EventAuthFailure, "verification chain exhausted")
}

// tryBootstrap redeems a sealed post-login parameter. Any defect (tampered,
// expired, wrong key) silently falls through to the session probe.
func (g *Guard) tryBootstrap(ctx context.Context, param string) *domain.Identity {
	if param == "" || g.sealer == nil {
		return nil
	}
	boot, err := g.sealer.Open(param)
	if err != nil {
		g.logger.DebugContext(ctx, "bootstrap parameter rejected", "error", err)
		return nil
	}
	identity := &domain.Identity{
		ID:    boot.UserID,
		Email: boot.Email,
		Name:  boot.Name,
		Role:  boot.Role,
	}
	if !identity.Role.Satisfies(g.required) {
		return nil
	}
	return identity
}

// tryMirroredToken is the offline fallback: validate the mirrored token
// locally (format, expiry, role), then ask the server to confirm. A token the
// server rejects is treated as absent.
func (g *Guard) tryMirroredToken(ctx context.Context) *domain.Identity {
	raw := g.state.Token()
	if raw == "" {
		return nil
	}

	payload := token.Decode(raw)
	if payload == nil || token.IsExpired(payload, g.clock()) {
		return nil
	}
	if !payload.Role.Satisfies(g.required) {
		return nil
	}

	identity, err := g.client.CheckToken(ctx, raw)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable) {
			// Server unreachable: the locally validated claim is the best
			// verdict available.
			return &domain.Identity{
				ID:    payload.UserID,
				Email: payload.Email,
				Name:  payload.Name,
				Role:  payload.Role,
			}
		}
		return nil
	}
	return identity
}

func (g *Guard) authorized(ctx context.Context, identity *domain.Identity, via string) Verdict {
	g.state.SetIdentity(*identity, g.state.Token())

	ev := audit.NewEvent(audit.EventAuthSuccess)
	ev.UserID = identity.ID
	ev.Detail = via
	g.events.Emit(ctx, ev)

	return Verdict{Status: StatusAuthorized, Identity: identity}
}

func (g *Guard) unauthorized(ctx context.Context, req VerifyRequest, evType audit.EventType, detail string) Verdict {
	g.state.Clear()

	ev := audit.NewEvent(evType)
	ev.Detail = detail
	g.events.Emit(ctx, ev)

	return Verdict{Status: StatusUnauthorized, Redirect: g.redirectTarget(req.ReturnURL)}
}

// redirectTarget builds the debounced signin redirect. Inside the debounce
// window it returns empty: somebody already navigated.
func (g *Guard) redirectTarget(returnURL string) string {
	now := g.clock()

	g.mu.Lock()
	defer g.mu.Unlock()
	if now.Sub(g.lastRedirect) < g.debounce {
		return ""
	}
	g.lastRedirect = now

	if returnURL == "" {
		return g.signinPath
	}
	return g.signinPath + "?returnUrl=" + url.QueryEscape(returnURL)
}

func (g *Guard) setStatus(s Status) {
	g.mu.Lock()
	g.status = s
	g.mu.Unlock()
}

// WatchStorage re-runs verification whenever another process changes the auth
// mirror (the cross-tab logout/login case). onVerdict receives every verdict;
// the loop ends when ctx is canceled.
func (g *Guard) WatchStorage(ctx context.Context, storage Storage, onVerdict func(Verdict)) {
	ch := storage.Watch()
	for {
		select {
		case <-ctx.Done():
			return
		case key, ok := <-ch:
			if !ok {
				return
			}
			if key != userKey && key != tokenKey {
				continue
			}
			if g.state.consumeSelfEvent(key) {
				continue
			}
			g.state.Resync()

			ev := audit.NewEvent(audit.EventCrossTabSync)
			ev.Detail = key
			g.events.Emit(ctx, ev)

			verdict := g.Verify(ctx, VerifyRequest{})
			if onVerdict != nil {
				onVerdict(verdict)
			}
		}
	}
}
