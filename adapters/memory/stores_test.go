package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpar/filinggate/adapters/clock"
	"github.com/artpar/filinggate/adapters/memory"
	"github.com/artpar/filinggate/domain/key"
	"github.com/artpar/filinggate/domain/plan"
	"github.com/artpar/filinggate/domain/usage"
	"github.com/artpar/filinggate/ports"
)

func TestKeyStore(t *testing.T) {
	s := memory.NewKeyStore()
	ctx := context.Background()

	k1 := key.Key{ID: "k1", UserID: 1, Prefix: "fg_aaaaaaaaa", CreatedAt: t0}
	k2 := key.Key{ID: "k2", UserID: 1, Prefix: "fg_bbbbbbbbb", CreatedAt: t0.Add(time.Minute)}
	s.Create(ctx, k2)
	s.Create(ctx, k1)

	got, _ := s.Get(ctx, "fg_aaaaaaaaa")
	if len(got) != 1 || got[0].ID != "k1" {
		t.Errorf("Get(prefix) = %+v", got)
	}

	list, _ := s.ListByUser(ctx, 1)
	if len(list) != 2 || list[0].ID != "k1" {
		t.Errorf("ListByUser should be oldest first, got %+v", list)
	}

	if err := s.Revoke(ctx, "k1", t0); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	k, _ := s.GetByID(ctx, "k1")
	if k.RevokedAt == nil {
		t.Error("key should be revoked")
	}

	if _, err := s.GetByID(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Revoke(ctx, "missing", t0); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Revoke(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUserStore(t *testing.T) {
	s := memory.NewUserStore()
	ctx := context.Background()

	id, err := s.Create(ctx, ports.User{Email: "a@example.com", PlanID: "free"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id != 1 {
		t.Errorf("first ID = %d, want 1", id)
	}
	if _, err := s.Create(ctx, ports.User{Email: "a@example.com"}); !errors.Is(err, memory.ErrDuplicateEmail) {
		t.Errorf("duplicate email error = %v", err)
	}

	u, _ := s.Get(ctx, id)
	if u.Status != ports.UserActive {
		t.Errorf("Status = %q, want active", u.Status)
	}

	u.Email = "b@example.com"
	s.Update(ctx, u)
	if _, err := s.GetByEmail(ctx, "a@example.com"); !errors.Is(err, ports.ErrNotFound) {
		t.Error("old email should be unindexed")
	}
	if got, _ := s.GetByEmail(ctx, "b@example.com"); got.ID != id {
		t.Errorf("GetByEmail(new) = %+v", got)
	}

	s.Create(ctx, ports.User{Email: "c@example.com"})
	page, _ := s.List(ctx, 1, 1)
	if len(page) != 1 || page[0].ID != 2 {
		t.Errorf("List(1,1) = %+v", page)
	}
}

func TestPlanStore(t *testing.T) {
	s := memory.NewPlanStore(plan.Plan{ID: "free", RequestsPerMinute: 10})
	ctx := context.Background()

	s.Upsert(ctx, plan.Plan{ID: "pro", RequestsPerMinute: 100})
	s.Upsert(ctx, plan.Plan{ID: "free", RequestsPerMinute: 20})

	list, _ := s.List(ctx)
	if len(list) != 2 || list[0].ID != "free" || list[0].RequestsPerMinute != 20 {
		t.Errorf("List() = %+v", list)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
}

func TestUsageStore_DeduplicatesRequestID(t *testing.T) {
	s := memory.NewUsageStore()
	ctx := context.Background()
	e := usage.Event{RequestID: "r1", APIKey: "k", Timestamp: t0, ResponseStatus: 200}

	s.RecordBatch(ctx, []usage.Event{e, e})
	s.RecordBatch(ctx, []usage.Event{e})

	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestUsageStore_EventsAndPurge(t *testing.T) {
	s := memory.NewUsageStore()
	ctx := context.Background()
	s.RecordBatch(ctx, []usage.Event{
		{RequestID: "r2", APIKey: "k", Timestamp: t0},
		{RequestID: "r1", APIKey: "k", Timestamp: t0.Add(-48 * time.Hour)},
		{RequestID: "r3", APIKey: "other", Timestamp: t0},
	})

	events, _ := s.Events(ctx, usage.Filter{APIKey: "k"})
	if len(events) != 2 || events[0].RequestID != "r1" {
		t.Errorf("Events() = %+v, want oldest first", events)
	}

	n, _ := s.Purge(ctx, t0.Add(-24*time.Hour))
	if n != 1 || s.Len() != 2 {
		t.Errorf("Purge removed %d, Len() = %d", n, s.Len())
	}
}

func TestUsageStore_FailWith(t *testing.T) {
	s := memory.NewUsageStore()
	boom := errors.New("disk full")
	s.FailWith(boom)

	err := s.RecordBatch(context.Background(), []usage.Event{{RequestID: "r1"}})
	if !errors.Is(err, boom) {
		t.Errorf("RecordBatch() error = %v, want %v", err, boom)
	}
}

func TestTracker(t *testing.T) {
	clk := clock.NewFake(t0)
	tr := memory.NewTracker(clk)
	ctx := context.Background()

	tr.Track(ctx, usage.Event{RequestID: "r1", APIKey: "k", Endpoint: "/usage", Timestamp: t0.Add(-time.Hour), ResponseStatus: 200, ProcessingTimeMs: 10})
	tr.Track(ctx, usage.Event{RequestID: "r2", APIKey: "k", Endpoint: "/usage", Timestamp: t0.Add(-time.Minute), ResponseStatus: 500, ProcessingTimeMs: 30})
	tr.Track(ctx, usage.Event{RequestID: "r3", APIKey: "other", Endpoint: "/usage", Timestamp: t0, ResponseStatus: 200})

	stats, err := tr.Stats(ctx, usage.Query{APIKey: "k", Days: 1})
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalRequests != 2 || stats.SuccessRate != 0.5 || stats.AverageResponseTimeMs != 20 {
		t.Errorf("Stats() = %+v", stats)
	}

	if err := tr.Track(ctx, usage.Event{}); !errors.Is(err, usage.ErrMissingRequestID) {
		t.Errorf("Track(invalid) error = %v", err)
	}
}
