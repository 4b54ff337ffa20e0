package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/artpar/filinggate/domain/usage"
	"github.com/artpar/filinggate/ports"
)

// UsageStore implements ports.UsageStore using SQLite.
// Timestamps are stored as unix milliseconds so range scans use the index.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a new SQLite usage store.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// RecordBatch stores events in one transaction. Duplicate request IDs
// are ignored so a retried batch is harmless.
func (s *UsageStore) RecordBatch(ctx context.Context, events []usage.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO usage_events (request_id, key_id, user_id, endpoint, method, status, processing_ms, timestamp_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO NOTHING
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		_, err := stmt.ExecContext(ctx,
			e.RequestID, e.APIKey, e.UserID, e.Endpoint, e.Method,
			e.ResponseStatus, e.ProcessingTimeMs, e.Timestamp.UnixMilli(),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Events returns matching events, oldest first.
func (s *UsageStore) Events(ctx context.Context, f usage.Filter) ([]usage.Event, error) {
	var where []string
	var args []any
	if f.APIKey != "" {
		where = append(where, "key_id = ?")
		args = append(args, f.APIKey)
	}
	if f.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if !f.Start.IsZero() {
		where = append(where, "timestamp_ms >= ?")
		args = append(args, f.Start.UnixMilli())
	}
	if !f.End.IsZero() {
		where = append(where, "timestamp_ms <= ?")
		args = append(args, f.End.UnixMilli())
	}

	query := `SELECT request_id, key_id, user_id, endpoint, method, status, processing_ms, timestamp_ms FROM usage_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp_ms, request_id"
	if f.Limit > 0 {
		query = `SELECT * FROM (` + strings.Replace(query, "ORDER BY timestamp_ms, request_id", "ORDER BY timestamp_ms DESC, request_id DESC", 1) +
			` LIMIT ?) ORDER BY timestamp_ms, request_id`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []usage.Event
	for rows.Next() {
		var e usage.Event
		var ts int64
		if err := rows.Scan(&e.RequestID, &e.APIKey, &e.UserID, &e.Endpoint, &e.Method,
			&e.ResponseStatus, &e.ProcessingTimeMs, &ts); err != nil {
			return nil, err
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// Purge deletes events older than before.
func (s *UsageStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM usage_events WHERE timestamp_ms < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

var _ ports.UsageStore = (*UsageStore)(nil)
