package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/artpar/filinggate/domain/plan"
	"github.com/artpar/filinggate/ports"
)

// PlanStore is an in-memory implementation of ports.PlanStore.
type PlanStore struct {
	mu    sync.RWMutex
	plans map[string]plan.Plan
}

// NewPlanStore creates a plan store seeded with plans.
func NewPlanStore(plans ...plan.Plan) *PlanStore {
	s := &PlanStore{plans: make(map[string]plan.Plan, len(plans))}
	for _, p := range plans {
		s.plans[p.ID] = p
	}
	return s
}

// List returns all plans ordered by ID.
func (s *PlanStore) List(ctx context.Context) ([]plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]plan.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get retrieves a plan by ID.
func (s *PlanStore) Get(ctx context.Context, id string) (plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plans[id]
	if !ok {
		return plan.Plan{}, ports.ErrNotFound
	}
	return p, nil
}

// Upsert creates or replaces a plan.
func (s *PlanStore) Upsert(ctx context.Context, p plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.plans[p.ID] = p
	return nil
}

var _ ports.PlanStore = (*PlanStore)(nil)
