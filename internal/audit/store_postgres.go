package audit

import (
	"context"
	"database/sql"
	"log/slog"

	_ "github.com/lib/pq"
)

// PostgresArchive persists events in PostgreSQL for compliance review.
// Like every emitter it swallows failures: the archive is best-effort.
type PostgresArchive struct {
	db     *sql.DB
	logger *slog.Logger
}

// ArchiveSchema is the DDL for the audit archive table.
const ArchiveSchema = `
CREATE TABLE IF NOT EXISTS security_events (
	id         TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	path       TEXT NOT NULL DEFAULT '',
	user_id    TEXT NOT NULL DEFAULT '',
	ip_address TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS security_events_type_idx ON security_events (event_type, occurred_at);
`

// OpenArchive connects to PostgreSQL via database/sql and the pq driver.
func OpenArchive(dsn string, logger *slog.Logger) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresArchive{db: db, logger: logger}, nil
}

// NewPostgresArchive wraps an existing handle (used by tests).
func NewPostgresArchive(db *sql.DB, logger *slog.Logger) *PostgresArchive {
	return &PostgresArchive{db: db, logger: logger}
}

func (a *PostgresArchive) Emit(ctx context.Context, ev Event) {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO security_events (id, event_type, path, user_id, ip_address, user_agent, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, string(ev.Type), ev.Path, ev.UserID, ev.IPAddress, ev.UserAgent, ev.Detail, ev.At,
	)
	if err != nil {
		a.logger.Error("archive security event", "error", err, "event_id", ev.ID)
	}
}

// Close releases the database handle.
func (a *PostgresArchive) Close() error { return a.db.Close() }
