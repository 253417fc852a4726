package audit

import (
	"context"
	"log/slog"
)

// SlogEmitter writes events to structured logs. This is the always-on sink;
// Kafka and Postgres sinks are optional layers on top.
type SlogEmitter struct {
	logger *slog.Logger
}

// NewSlog constructs a log-backed emitter.
func NewSlog(logger *slog.Logger) *SlogEmitter {
	return &SlogEmitter{logger: logger}
}

func (s *SlogEmitter) Emit(ctx context.Context, ev Event) {
	s.logger.InfoContext(ctx, "security event",
		"event_id", ev.ID,
		"event_type", string(ev.Type),
		"path", ev.Path,
		"user_id", ev.UserID,
		"ip", ev.IPAddress,
		"user_agent", ev.UserAgent,
		"detail", ev.Detail,
		"at", ev.At,
	)
}
