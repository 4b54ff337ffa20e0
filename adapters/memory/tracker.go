package memory

import (
	"context"

	"github.com/artpar/filinggate/domain/usage"
	"github.com/artpar/filinggate/ports"
)

// Tracker is an in-memory ports.UsageTracker. Events are kept in process
// and aggregated on demand; nothing is persisted. Selected with
// usage.mode "memory" for local runs and tests.
type Tracker struct {
	store *UsageStore
	clock ports.Clock
}

// NewTracker creates an in-memory tracker.
func NewTracker(clk ports.Clock) *Tracker {
	return &Tracker{store: NewUsageStore(), clock: clk}
}

// Track stores the event immediately.
func (t *Tracker) Track(ctx context.Context, e usage.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return t.store.RecordBatch(ctx, []usage.Event{e})
}

// Stats aggregates the key's events over the last q.Days days.
func (t *Tracker) Stats(ctx context.Context, q usage.Query) (usage.Stats, error) {
	period := usage.NewPeriod(t.clock.Now(), q.Days)
	events, err := t.store.Events(ctx, period.Filter(q.APIKey, q.UserID))
	if err != nil {
		return usage.Stats{}, err
	}
	return usage.Aggregate(events, period), nil
}

// Flush is a no-op; events are stored on Track.
func (t *Tracker) Flush(ctx context.Context) error { return nil }

// Close is a no-op.
func (t *Tracker) Close() error { return nil }

// Events returns every tracked event (for testing).
func (t *Tracker) Events() []usage.Event {
	events, _ := t.store.Events(context.Background(), usage.Filter{})
	return events
}

var _ ports.UsageTracker = (*Tracker)(nil)
