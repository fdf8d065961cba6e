package requestlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSink persists finalized entries into a Postgres table, one INSERT ...
// ON CONFLICT (id) DO UPDATE per Write call. It never blocks the caller
// beyond the query itself; a failed write is logged and dropped, matching
// spec.md §7's "persistence I/O failures ... are reported but do not
// alter in-memory state".
type PGSink struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPGSink(pool *pgxpool.Pool, logger *slog.Logger) *PGSink {
	return &PGSink{pool: pool, logger: logger}
}

const upsertSQL = `
INSERT INTO request_log (
	id, trace_id, started_at, success, failed, error_message,
	total_seconds, thinking_delay, input_tokens, output_tokens,
	user_email, usage_requests, stripe_paid
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
	success = EXCLUDED.success,
	failed = EXCLUDED.failed,
	error_message = EXCLUDED.error_message,
	total_seconds = EXCLUDED.total_seconds,
	thinking_delay = EXCLUDED.thinking_delay,
	input_tokens = EXCLUDED.input_tokens,
	output_tokens = EXCLUDED.output_tokens,
	user_email = EXCLUDED.user_email,
	usage_requests = EXCLUDED.usage_requests,
	stripe_paid = EXCLUDED.stripe_paid
`

func (s *PGSink) Write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.pool.Exec(ctx, upsertSQL,
		e.ID.String(), e.TraceID, e.StartedAt, e.Success, e.Failed, e.ErrorMessage,
		e.TotalSeconds, e.ThinkingDelay, e.Usage.InputTokens, e.Usage.OutputTokens,
		e.UserEmail, e.UsageRequests, e.StripePaid,
	)
	if err != nil {
		s.logger.Warn("requestlog: pg upsert failed", "id", e.ID.String(), "error", err)
	}
}
