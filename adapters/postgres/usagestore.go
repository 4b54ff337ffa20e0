// Package postgres provides a PostgreSQL usage event store for
// deployments where several API nodes share one event log.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/filinggate/domain/usage"
	"github.com/artpar/filinggate/ports"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Schema creates the usage_events table. Applied by Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS usage_events (
	request_id    TEXT PRIMARY KEY,
	key_id        TEXT NOT NULL,
	user_id       BIGINT NOT NULL DEFAULT 0,
	endpoint      TEXT NOT NULL DEFAULT '',
	method        TEXT NOT NULL DEFAULT '',
	status        INTEGER NOT NULL,
	processing_ms BIGINT NOT NULL DEFAULT 0,
	occurred_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_events_key_time ON usage_events (key_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_usage_events_time ON usage_events (occurred_at);
`

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open opens a pgx-backed database/sql pool and verifies the connection.
func Open(ctx context.Context, dsn string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// UsageStore implements ports.UsageStore on PostgreSQL.
type UsageStore struct {
	db *sql.DB
}

// NewUsageStore creates a usage store over an open pool.
func NewUsageStore(db *sql.DB) *UsageStore {
	return &UsageStore{db: db}
}

// Migrate creates the table and indexes if they do not exist.
func (s *UsageStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate usage_events: %w", err)
	}
	return nil
}

// maxBatchRows keeps one INSERT under the protocol limit of 65535
// bind parameters.
const maxBatchRows = 65535 / 8

// RecordBatch inserts events in multi-row statements of at most
// maxBatchRows rows. Duplicate request IDs are skipped, so a batch that
// fails part way can be written again.
func (s *UsageStore) RecordBatch(ctx context.Context, events []usage.Event) error {
	for len(events) > 0 {
		n := min(len(events), maxBatchRows)
		if err := s.insert(ctx, events[:n]); err != nil {
			return err
		}
		events = events[n:]
	}
	return nil
}

func (s *UsageStore) insert(ctx context.Context, events []usage.Event) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO usage_events (request_id, key_id, user_id, endpoint, method, status, processing_ms, occurred_at) VALUES `)
	args := make([]any, 0, len(events)*8)
	for i, e := range events {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 8
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8)
		args = append(args, e.RequestID, e.APIKey, e.UserID, e.Endpoint, e.Method,
			e.ResponseStatus, e.ProcessingTimeMs, e.Timestamp.UTC())
	}
	sb.WriteString(` ON CONFLICT (request_id) DO NOTHING`)

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert usage events: %w", err)
	}
	return nil
}

// Events returns matching events, oldest first.
func (s *UsageStore) Events(ctx context.Context, f usage.Filter) ([]usage.Event, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.APIKey != "" {
		add("key_id = $%d", f.APIKey)
	}
	if f.UserID != 0 {
		add("user_id = $%d", f.UserID)
	}
	if !f.Start.IsZero() {
		add("occurred_at >= $%d", f.Start.UTC())
	}
	if !f.End.IsZero() {
		add("occurred_at <= $%d", f.End.UTC())
	}

	query := `SELECT request_id, key_id, user_id, endpoint, method, status, processing_ms, occurred_at FROM usage_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query = fmt.Sprintf(`SELECT * FROM (%s ORDER BY occurred_at DESC, request_id DESC LIMIT $%d) recent`, query, len(args))
	}
	query += " ORDER BY occurred_at, request_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage events: %w", err)
	}
	defer rows.Close()

	var events []usage.Event
	for rows.Next() {
		var e usage.Event
		if err := rows.Scan(&e.RequestID, &e.APIKey, &e.UserID, &e.Endpoint, &e.Method,
			&e.ResponseStatus, &e.ProcessingTimeMs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan usage event: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// Purge deletes events older than before.
func (s *UsageStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM usage_events WHERE occurred_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge usage events: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the connection.
func (s *UsageStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var _ ports.UsageStore = (*UsageStore)(nil)
