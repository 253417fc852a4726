package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"time"

	"storegate/pkg/domain"
	dErrors "storegate/pkg/domainerrors"
)

// Client calls the gateway's public endpoints. It keeps a cookie jar so the
// httpOnly credential cookies round-trip the way a browser's would.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default client (used by tests).
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// NewClient constructs a gateway client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second, Jar: jar},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type checkResponse struct {
	Success bool            `json:"success"`
	User    domain.Identity `json:"user"`
}

type extendBody struct {
	Success   bool  `json:"success"`
	ExpiresAt int64 `json:"expiresAt"`
}

// CheckSession probes the session endpoint with whatever credentials the jar
// holds.
func (c *Client) CheckSession(ctx context.Context) (*domain.Identity, error) {
	return c.check(ctx, "")
}

// CheckToken probes the session endpoint presenting an explicit mirrored
// token instead of the jar's cookie. Used by the guard's local-token fallback
// to get a server verdict on state the jar never saw.
func (c *Client) CheckToken(ctx context.Context, token string) (*domain.Identity, error) {
	return c.check(ctx, token)
}

func (c *Client) check(ctx context.Context, token string) (*domain.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/session-check", nil)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "build session check", err)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "auth_token", Value: token})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUpstreamUnavailable, "gateway unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp)
	}

	var body checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUpstreamUnavailable, "decode session check", err)
	}
	return &body.User, nil
}

// ExtendSession pushes the session expiry forward and returns the new expiry.
func (c *Client) ExtendSession(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/session-extend", nil)
	if err != nil {
		return time.Time{}, dErrors.Wrap(dErrors.CodeInternal, "build session extend", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return time.Time{}, dErrors.Wrap(dErrors.CodeUpstreamUnavailable, "gateway unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return time.Time{}, c.decodeError(resp)
	}

	var body extendBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return time.Time{}, dErrors.Wrap(dErrors.CodeUpstreamUnavailable, "decode session extend", err)
	}
	return time.Unix(body.ExpiresAt, 0), nil
}

// Logout tears down the server session and clears the jar's cookies.
func (c *Client) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/logout", nil)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "build logout", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeUpstreamUnavailable, "gateway unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return c.decodeError(resp)
	}
	return nil
}

// decodeError turns a coded JSON error body back into a GatewayError, so the
// guard can branch on codes the same way server components do.
func (c *Client) decodeError(resp *http.Response) error {
	var body struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		if resp.StatusCode >= 500 {
			return dErrors.New(dErrors.CodeUpstreamUnavailable, "gateway error")
		}
		return dErrors.New(dErrors.CodeNoCredentials, "request rejected")
	}
	msg := body.Description
	if msg == "" {
		msg = body.Error
	}
	return dErrors.New(dErrors.Code(body.Error), msg)
}
