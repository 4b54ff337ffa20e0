package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/filinggate/domain/ratelimit"
	"github.com/artpar/filinggate/ports"
)

// CounterStore implements ports.CounterStore on the rate_counters table.
// Suits single-node deployments that already run on SQLite; expired rows
// read as zero and are removed by Cleanup.
type CounterStore struct {
	db    *DB
	clock ports.Clock
}

// NewCounterStore creates a SQLite counter store.
func NewCounterStore(db *DB, clk ports.Clock) *CounterStore {
	return &CounterStore{db: db, clock: clk}
}

// incrementSQL restarts an expired counter at 1 with no expiry.
const incrementSQL = `
	INSERT INTO rate_counters (key, count, expires_at) VALUES (?1, 1, ?2)
	ON CONFLICT(key) DO UPDATE SET
		count = CASE WHEN rate_counters.expires_at != 0 AND rate_counters.expires_at <= ?3
			THEN 1 ELSE rate_counters.count + 1 END,
		expires_at = CASE WHEN rate_counters.expires_at != 0 AND rate_counters.expires_at <= ?3
			THEN ?2 ELSE rate_counters.expires_at END
	RETURNING count
`

type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Increment atomically adds one and returns the new count.
func (s *CounterStore) Increment(ctx context.Context, key string) (int64, error) {
	return increment(ctx, s.db, key, 0, s.clock.Now())
}

func increment(ctx context.Context, q execer, key string, expiresAt int64, now time.Time) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx, incrementSQL, key, expiresAt, now.UnixMilli()).Scan(&n)
	return n, err
}

// Get returns the current count, zero when missing or expired.
func (s *CounterStore) Get(ctx context.Context, key string) (int64, error) {
	return get(ctx, s.db, key, s.clock.Now())
}

func get(ctx context.Context, q execer, key string, now time.Time) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx, `
		SELECT count FROM rate_counters
		WHERE key = ? AND (expires_at = 0 OR expires_at > ?)
	`, key, now.UnixMilli()).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// Expire sets the key to expire ttl from now.
func (s *CounterStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `UPDATE rate_counters SET expires_at = ? WHERE key = ?`,
		s.clock.Now().Add(ttl).UnixMilli(), key)
	return err
}

// Ping checks the database connection.
func (s *CounterStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Admit reads and increments all counters inside one immediate
// transaction, so no other writer can interleave.
func (s *CounterStore) Admit(ctx context.Context, counters []ratelimit.Counter) ([]int64, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	now := s.clock.Now()
	counts := make([]int64, len(counters))
	for i, c := range counters {
		n, err := get(ctx, tx, c.Key, now)
		if err != nil {
			return nil, false, err
		}
		counts[i] = n
	}
	for i, c := range counters {
		if counts[i] >= c.Limit {
			return counts, false, nil
		}
	}

	for i, c := range counters {
		n, err := increment(ctx, tx, c.Key, c.End.UnixMilli(), now)
		if err != nil {
			return nil, false, err
		}
		counts[i] = n
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return counts, true, nil
}

// Cleanup deletes expired counters and returns how many.
func (s *CounterStore) Cleanup(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rate_counters WHERE expires_at != 0 AND expires_at <= ?`,
		s.clock.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

var _ ports.CounterStore = (*CounterStore)(nil)
