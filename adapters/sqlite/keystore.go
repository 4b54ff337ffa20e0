package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/filinggate/domain/key"
	"github.com/artpar/filinggate/ports"
)

// KeyStore implements ports.KeyStore using SQLite.
type KeyStore struct {
	db *DB
}

// NewKeyStore creates a new SQLite key store.
func NewKeyStore(db *DB) *KeyStore {
	return &KeyStore{db: db}
}

const keyColumns = `id, user_id, hash, prefix, name, expires_at, revoked_at, created_at, last_used,
	requests_per_minute, requests_per_day`

// Get retrieves keys matching a prefix.
func (s *KeyStore) Get(ctx context.Context, prefix string) ([]key.Key, error) {
	return s.list(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE prefix = ?`, prefix)
}

// GetByID retrieves a key by ID.
func (s *KeyStore) GetByID(ctx context.Context, id string) (key.Key, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE id = ?`, id)
	k, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return key.Key{}, ports.ErrNotFound
	}
	return k, err
}

// Create stores a new key.
func (s *KeyStore) Create(ctx context.Context, k key.Key) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (`+keyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, k.ID, k.UserID, k.Hash, k.Prefix, k.Name,
		nullTime(k.ExpiresAt), nullTime(k.RevokedAt), k.CreatedAt.UTC(), nullTime(k.LastUsed),
		k.RequestsPerMinute, k.RequestsPerDay)
	return err
}

// Revoke marks a key as revoked.
func (s *KeyStore) Revoke(ctx context.Context, id string, at time.Time) error {
	return s.touch(ctx, `UPDATE api_keys SET revoked_at = ? WHERE id = ?`, at.UTC(), id)
}

// ListByUser returns all keys for a user, oldest first.
func (s *KeyStore) ListByUser(ctx context.Context, userID int64) ([]key.Key, error) {
	return s.list(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE user_id = ? ORDER BY created_at, id`, userID)
}

// UpdateLastUsed updates the last used timestamp.
func (s *KeyStore) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	return s.touch(ctx, `UPDATE api_keys SET last_used = ? WHERE id = ?`, at.UTC(), id)
}

func (s *KeyStore) touch(ctx context.Context, query string, at time.Time, id string) error {
	result, err := s.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (s *KeyStore) list(ctx context.Context, query string, args ...any) ([]key.Key, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []key.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(row scanner) (key.Key, error) {
	var k key.Key
	var expiresAt, revokedAt, lastUsed sql.NullTime

	err := row.Scan(
		&k.ID, &k.UserID, &k.Hash, &k.Prefix, &k.Name,
		&expiresAt, &revokedAt, &k.CreatedAt, &lastUsed,
		&k.RequestsPerMinute, &k.RequestsPerDay,
	)
	if err != nil {
		return key.Key{}, err
	}
	k.ExpiresAt = timePtr(expiresAt)
	k.RevokedAt = timePtr(revokedAt)
	k.LastUsed = timePtr(lastUsed)
	return k, nil
}

var _ ports.KeyStore = (*KeyStore)(nil)
