package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/filinggate/ports"
)

// UserStore implements ports.UserStore using SQLite.
type UserStore struct {
	db *DB
}

// NewUserStore creates a new SQLite user store.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, email, name, plan_id, stripe_customer_id, status, created_at, updated_at`

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, id int64) (ports.User, error) {
	return s.one(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByEmail retrieves a user by email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (ports.User, error) {
	return s.one(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

// Create stores a new user and returns the assigned ID.
func (s *UserStore) Create(ctx context.Context, u ports.User) (int64, error) {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	if u.Status == "" {
		u.Status = ports.UserActive
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, name, plan_id, stripe_customer_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.Email, u.Name, u.PlanID, u.StripeCustomerID, u.Status, u.CreatedAt.UTC(), u.UpdatedAt.UTC())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// Update modifies an existing user.
func (s *UserStore) Update(ctx context.Context, u ports.User) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET email = ?, name = ?, plan_id = ?, stripe_customer_id = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, u.Email, u.Name, u.PlanID, u.StripeCustomerID, u.Status, time.Now().UTC(), u.ID)
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

// List returns users ordered by ID with pagination.
func (s *UserStore) List(ctx context.Context, limit, offset int) ([]ports.User, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []ports.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *UserStore) one(ctx context.Context, query string, arg any) (ports.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return ports.User{}, ports.ErrNotFound
	}
	return u, err
}

func scanUser(row scanner) (ports.User, error) {
	var u ports.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PlanID, &u.StripeCustomerID, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

var _ ports.UserStore = (*UserStore)(nil)
