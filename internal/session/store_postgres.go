package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storegate/pkg/domain"
	dErrors "storegate/pkg/domainerrors"
	"storegate/pkg/platform/sentinel"
)

// PostgresStore persists sessions in PostgreSQL for deployments that want
// durable sessions surviving a cache flush. Extension is a single guarded
// UPDATE, so concurrent extends serialize on the row without a round-trip
// read-modify-write.
type PostgresStore struct {
	pool        *pgxpool.Pool
	ttl         time.Duration
	maxLifetime time.Duration
	clock       func() time.Time
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresTTL overrides the default sliding window.
func WithPostgresTTL(ttl time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithPostgresMaxLifetime overrides the absolute extension ceiling.
func WithPostgresMaxLifetime(max time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if max > 0 {
			s.maxLifetime = max
		}
	}
}

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock func() time.Time) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewPostgres constructs a PostgreSQL-backed session store.
func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		pool:        pool,
		ttl:         DefaultTTL,
		maxLifetime: DefaultMaxLifetime,
		clock:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Schema is the DDL for the sessions table. Applied by deployment tooling,
// exported so integration tests can create the table themselves.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	email      TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	role       TEXT NOT NULL DEFAULT 'user',
	ip_address TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	CHECK (expires_at > created_at)
);
CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at);
`

func (s *PostgresStore) Create(ctx context.Context, params CreateParams) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	id, err := newID()
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "generate session id", err)
	}

	now := s.clock()
	sess := &Session{
		ID:        id,
		UserID:    params.UserID,
		Email:     params.Email,
		Name:      params.Name,
		Role:      domainRole(params.Role),
		IPAddress: params.IPAddress,
		UserAgent: params.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, email, name, role, ip_address, user_agent, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.UserID, sess.Email, sess.Name, string(sess.Role),
		sess.IPAddress, sess.UserAgent, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "store session", err)
	}
	return sess, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.scanOne(ctx, `
		SELECT id, user_id, email, name, role, ip_address, user_agent, created_at, expires_at
		FROM sessions WHERE id = $1 AND expires_at > $2`,
		id, s.clock(),
	)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *PostgresStore) Extend(ctx context.Context, id string, extension time.Duration) (*Session, error) {
	if extension <= 0 {
		extension = s.ttl
	}
	now := s.clock()

	sess, err := s.scanOne(ctx, `
		UPDATE sessions
		SET expires_at = GREATEST(expires_at, LEAST($2::timestamptz + $3::interval, created_at + $4::interval))
		WHERE id = $1 AND expires_at > $2
		RETURNING id, user_id, email, name, role, ip_address, user_agent, created_at, expires_at`,
		id, now, extension, s.maxLifetime,
	)
	if errors.Is(err, sentinel.ErrNotFound) {
		// Distinguish "never existed" from "expired, rejected".
		var exists bool
		if qErr := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists); qErr == nil && exists {
			return nil, sentinel.ErrExpired
		}
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "delete session", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, s.clock())
	if err != nil {
		return 0, dErrors.Wrap(dErrors.CodeInternal, "reap sessions", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) scanOne(ctx context.Context, query string, args ...any) (*Session, error) {
	var (
		sess Session
		role string
	)
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&sess.ID, &sess.UserID, &sess.Email, &sess.Name, &role,
		&sess.IPAddress, &sess.UserAgent, &sess.CreatedAt, &sess.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load session", err)
	}
	sess.Role = domain.Role(role)
	return &sess, nil
}
