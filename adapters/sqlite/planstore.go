package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/artpar/filinggate/domain/plan"
	"github.com/artpar/filinggate/ports"
)

// PlanStore implements ports.PlanStore using SQLite.
type PlanStore struct {
	db *DB
}

// NewPlanStore creates a new SQLite plan store.
func NewPlanStore(db *DB) *PlanStore {
	return &PlanStore{db: db}
}

const planColumns = `id, name, requests_per_minute, requests_per_day, stripe_price_id, is_default`

// List returns all plans ordered by ID.
func (s *PlanStore) List(ctx context.Context) ([]plan.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+planColumns+` FROM plans ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := []plan.Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// Get retrieves a plan by ID.
func (s *PlanStore) Get(ctx context.Context, id string) (plan.Plan, error) {
	p, err := scanPlan(s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return plan.Plan{}, ports.ErrNotFound
	}
	return p, err
}

// Upsert creates or replaces a plan.
func (s *PlanStore) Upsert(ctx context.Context, p plan.Plan) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plans (`+planColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			requests_per_minute = excluded.requests_per_minute,
			requests_per_day = excluded.requests_per_day,
			stripe_price_id = excluded.stripe_price_id,
			is_default = excluded.is_default
	`, p.ID, p.Name, p.RequestsPerMinute, p.RequestsPerDay, p.StripePriceID, p.Default)
	return err
}

func scanPlan(row scanner) (plan.Plan, error) {
	var p plan.Plan
	err := row.Scan(&p.ID, &p.Name, &p.RequestsPerMinute, &p.RequestsPerDay, &p.StripePriceID, &p.Default)
	return p, err
}

var _ ports.PlanStore = (*PlanStore)(nil)
