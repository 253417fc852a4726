// Package config loads service configuration from the environment so main
// stays lean. Optional backends (Redis, Postgres, Kafka) are enabled by
// presence: an empty URL means the in-memory fallback.
package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full service configuration.
type Config struct {
	Addr string `env:"STOREGATE_ADDR" envDefault:":8080"`
	Env  string `env:"STOREGATE_ENV" envDefault:"development"`

	// BackendURL is the storefront backend issuing and validating tokens.
	BackendURL     string        `env:"BACKEND_URL,required,notEmpty"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"5s"`

	OAuth   OAuth   `envPrefix:"OAUTH_"`
	Session Session `envPrefix:"SESSION_"`

	// SealKeyB64 is the 32-byte AEAD key for the post-login bootstrap
	// parameter, base64 encoded.
	SealKeyB64 string `env:"SEAL_KEY,required,notEmpty"`

	RedisURL         string `env:"REDIS_URL"`
	PostgresURL      string `env:"POSTGRES_URL"`
	AuditPostgresURL string `env:"AUDIT_POSTGRES_URL"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"storegate.security-events"`

	RateLimit  int           `env:"ADMIN_RATE_LIMIT" envDefault:"10"`
	RateWindow time.Duration `env:"ADMIN_RATE_WINDOW" envDefault:"60s"`
}

// OAuth configures the identity provider used by the callback flow.
type OAuth struct {
	Provider     string `env:"PROVIDER" envDefault:"google"`
	TokenURL     string `env:"TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

// Session configures session lifetimes and the sweeper.
type Session struct {
	TTL           time.Duration `env:"TTL" envDefault:"24h"`
	MaxLifetime   time.Duration `env:"MAX_LIFETIME" envDefault:"168h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Production reports whether the service runs with production hardening
// (Secure cookies, JSON logs).
func (c *Config) Production() bool {
	return c.Env == "production"
}

// SealKey decodes and validates the bootstrap seal key.
func (c *Config) SealKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(c.SealKeyB64)
	if err != nil {
		return nil, fmt.Errorf("decode seal key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("seal key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}
