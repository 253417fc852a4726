// Package oauth implements the provider callback flow: authorization-code
// exchange, backend login forwarding, cookie issuance, and the sealed
// bootstrap parameter that hands the fresh identity to the storefront without
// a second round trip.
package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "storegate/pkg/domainerrors"
)

// ProviderIdentity is what the identity provider asserts about the user after
// a successful code exchange.
type ProviderIdentity struct {
	Email   string
	Name    string
	Picture string
	IDToken string
}

// Provider exchanges an authorization code for a provider identity.
type Provider interface {
	Name() string
	Exchange(ctx context.Context, code string) (*ProviderIdentity, error)
}

// OIDCProvider exchanges codes against a standard OIDC token endpoint and
// reads identity claims from the returned id_token. The id_token signature is
// not re-verified here: it arrives over the provider's TLS channel in a
// server-to-server exchange, which is the trust boundary OIDC defines for the
// code flow.
type OIDCProvider struct {
	name         string
	tokenURL     string
	clientID     string
	clientSecret string
	redirectURL  string
	client       *http.Client
}

// OIDCOption configures an OIDCProvider.
type OIDCOption func(*OIDCProvider)

// WithClient replaces the default HTTP client (used by tests).
func WithClient(c *http.Client) OIDCOption {
	return func(p *OIDCProvider) {
		if c != nil {
			p.client = c
		}
	}
}

// NewOIDCProvider constructs a code-flow client for one provider.
func NewOIDCProvider(name, tokenURL, clientID, clientSecret, redirectURL string, opts ...OIDCOption) *OIDCProvider {
	p := &OIDCProvider{
		name:         name,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		client:       &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *OIDCProvider) Name() string { return p.name }

func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*ProviderIdentity, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {p.clientID},
		"client_secret": {p.clientSecret},
		"redirect_uri":  {p.redirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "build exchange request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUpstreamUnavailable, "provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return nil, dErrors.New(dErrors.CodeUpstreamUnavailable, "provider error")
		}
		return nil, dErrors.New(dErrors.CodeNoCredentials, "provider rejected authorization code")
	}

	var body struct {
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUpstreamUnavailable, "decode token response", err)
	}
	if body.IDToken == "" {
		return nil, dErrors.New(dErrors.CodeNoCredentials, "provider response carried no id_token")
	}

	identity, err := identityFromIDToken(body.IDToken)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

func identityFromIDToken(idToken string) (*ProviderIdentity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeMalformedToken, "parse id_token", err)
	}

	email, _ := claims["email"].(string)
	if email == "" {
		return nil, dErrors.New(dErrors.CodeNoCredentials, "id_token carried no email claim")
	}
	name, _ := claims["name"].(string)
	picture, _ := claims["picture"].(string)

	return &ProviderIdentity{
		Email:   email,
		Name:    name,
		Picture: picture,
		IDToken: idToken,
	}, nil
}
