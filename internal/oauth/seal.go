package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"storegate/pkg/domain"
	dErrors "storegate/pkg/domainerrors"
)

// DefaultBootstrapTTL bounds how long a sealed bootstrap parameter stays
// redeemable. The parameter lives in a redirect URL, so a short window limits
// what a leaked URL (browser history, referrer) is worth.
const DefaultBootstrapTTL = 5 * time.Minute

// Bootstrap is the identity snapshot handed to the storefront through the
// post-login redirect. The client uses it to render the signed-in state
// immediately instead of probing the session endpoint first.
type Bootstrap struct {
	UserID   string      `json:"userId"`
	Email    string      `json:"email"`
	Name     string      `json:"name,omitempty"`
	Role     domain.Role `json:"role"`
	IssuedAt int64       `json:"iat"`
}

// Sealer seals and opens bootstrap parameters with an AEAD. Anything the URL
// carries must be tamper-proof: a query parameter the user can edit is not a
// credential unless it is sealed.
type Sealer struct {
	key   []byte
	clock func() time.Time
	ttl   time.Duration
}

// SealerOption configures a Sealer.
type SealerOption func(*Sealer)

// WithSealerClock sets the clock function for testability.
func WithSealerClock(clock func() time.Time) SealerOption {
	return func(s *Sealer) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithBootstrapTTL overrides the redeem window.
func WithBootstrapTTL(ttl time.Duration) SealerOption {
	return func(s *Sealer) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewSealer constructs a Sealer. The key must be exactly 32 bytes.
func NewSealer(key []byte, opts ...SealerOption) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, dErrors.New(dErrors.CodeInternal, "bootstrap seal key must be 32 bytes")
	}
	s := &Sealer{
		key:   append([]byte(nil), key...),
		clock: time.Now,
		ttl:   DefaultBootstrapTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Seal encrypts the bootstrap into a URL-safe opaque string.
func (s *Sealer) Seal(b Bootstrap) (string, error) {
	b.IssuedAt = s.clock().Unix()

	plaintext, err := json.Marshal(b)
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "encode bootstrap", err)
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "init aead", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "generate nonce", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts and validates a sealed parameter. Tampered ciphertext and
// parameters older than the TTL are both rejected with no distinction the
// caller can act on; either way the client falls back to a session probe.
func (s *Sealer) Open(sealed string) (*Bootstrap, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeMalformedToken, "bootstrap parameter is not valid base64")
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "init aead", err)
	}
	if len(raw) < aead.NonceSize() {
		return nil, dErrors.New(dErrors.CodeMalformedToken, "bootstrap parameter too short")
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeMalformedToken, "bootstrap parameter failed authentication")
	}

	var b Bootstrap
	if err := json.Unmarshal(plaintext, &b); err != nil {
		return nil, dErrors.New(dErrors.CodeMalformedToken, "bootstrap parameter payload invalid")
	}

	if s.clock().Sub(time.Unix(b.IssuedAt, 0)) > s.ttl {
		return nil, dErrors.New(dErrors.CodeExpiredToken, "bootstrap parameter expired")
	}
	return &b, nil
}
