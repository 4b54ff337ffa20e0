package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/artpar/filinggate/domain/usage"
	"github.com/artpar/filinggate/ports"
)

// UsageStore is an in-memory implementation of ports.UsageStore.
type UsageStore struct {
	mu     sync.RWMutex
	events []usage.Event
	seen   map[string]bool // request IDs
	err    error
}

// NewUsageStore creates a new in-memory usage store.
func NewUsageStore() *UsageStore {
	return &UsageStore{seen: make(map[string]bool)}
}

// FailWith makes every write fail with err; nil restores normal behavior.
// Used to exercise recording failures in tests.
func (s *UsageStore) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// RecordBatch stores events, skipping request IDs already stored.
func (s *UsageStore) RecordBatch(ctx context.Context, events []usage.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	for _, e := range events {
		if s.seen[e.RequestID] {
			continue
		}
		s.seen[e.RequestID] = true
		s.events = append(s.events, e)
	}
	return nil
}

// Events returns matching events, oldest first.
func (s *UsageStore) Events(ctx context.Context, f usage.Filter) ([]usage.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []usage.Event
	for _, e := range s.events {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

// Purge deletes events older than before.
func (s *UsageStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var removed int64
	for _, e := range s.events {
		if e.Timestamp.Before(before) {
			delete(s.seen, e.RequestID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return removed, nil
}

// Len returns the number of stored events (for testing).
func (s *UsageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

var _ ports.UsageStore = (*UsageStore)(nil)
