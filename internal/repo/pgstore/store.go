// Package pgstore is the Postgres-backed log event stream, selected with
// log_store: postgres.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/edirooss/livepush/internal/domain/logevent"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

const schema = `
CREATE TABLE IF NOT EXISTS log_events (
	sequence     BIGINT PRIMARY KEY,
	ts           TIMESTAMPTZ NOT NULL,
	session_id   TEXT NOT NULL DEFAULT '',
	kind         TEXT NOT NULL,
	message      TEXT NOT NULL,
	video_ref    TEXT NOT NULL DEFAULT '',
	channel_name TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS log_events_session_seq ON log_events (session_id, sequence DESC);
`

// LogStore appends to and reads from the log_events table.
type LogStore struct {
	pool    *pgxpool.Pool
	log     *zap.Logger
	timeout time.Duration
}

// Open connects to dsn and ensures the table exists.
func Open(ctx context.Context, log *zap.Logger, dsn string) (*LogStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	s := &LogStore{pool: pool, log: log.Named("pgstore"), timeout: 3 * time.Second}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s.log.Info("connection established", zap.String("database", cfg.ConnConfig.Database))
	return s, nil
}

func (s *LogStore) migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create log_events: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *LogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Append inserts the events in one batch. Re-appending a sequence is a no-op,
// which makes backlog replays safe.
func (s *LogStore) Append(ctx context.Context, evs ...*logevent.LogEvent) error {
	if len(evs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	batch := &pgx.Batch{}
	for _, ev := range evs {
		batch.Queue(`
INSERT INTO log_events (sequence, ts, session_id, kind, message, video_ref, channel_name)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (sequence) DO NOTHING
`, ev.Sequence, ev.Timestamp.UTC(), ev.SessionID, string(ev.Kind), ev.Message, ev.VideoRef, ev.ChannelName)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert log_events: %w", err)
	}
	return nil
}

// Query returns events by sequence descending.
func (s *LogStore) Query(ctx context.Context, f logevent.Filter) ([]*logevent.LogEvent, error) {
	limit := f.Limit
	switch {
	case limit <= 0:
		limit = defaultLimit
	case limit > maxLimit:
		limit = maxLimit
	}
	kinds := make([]string, len(f.Kinds))
	for i, k := range f.Kinds {
		kinds[i] = string(k)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
SELECT sequence, ts, session_id, kind, message, video_ref, channel_name
FROM log_events
WHERE ($1::text = '' OR session_id = $1)
  AND (cardinality($2::text[]) = 0 OR kind = ANY($2))
ORDER BY sequence DESC
LIMIT $3
`, f.SessionID, kinds, limit)
	if err != nil {
		return nil, fmt.Errorf("query log_events: %w", err)
	}
	defer rows.Close()

	out := make([]*logevent.LogEvent, 0, limit)
	for rows.Next() {
		var (
			ev   logevent.LogEvent
			kind string
		)
		if err := rows.Scan(&ev.Sequence, &ev.Timestamp, &ev.SessionID, &kind, &ev.Message, &ev.VideoRef, &ev.ChannelName); err != nil {
			return nil, fmt.Errorf("scan log_events: %w", err)
		}
		ev.Kind = logevent.Kind(kind)
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log_events: %w", err)
	}
	return out, nil
}

// LastSequence returns the highest stored sequence, or 0 for an empty table.
func (s *LogStore) LastSequence(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var seq int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM log_events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max sequence: %w", err)
	}
	return seq, nil
}
