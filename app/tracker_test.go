package app_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/artpar/filinggate/adapters/clock"
	"github.com/artpar/filinggate/adapters/memory"
	"github.com/artpar/filinggate/adapters/metrics"
	"github.com/artpar/filinggate/app"
	"github.com/artpar/filinggate/domain/gate"
	"github.com/artpar/filinggate/domain/usage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func newTracker(t *testing.T, cfg app.TrackerConfig) (*app.StoreTracker, *memory.UsageStore, *clock.Fake, *metrics.Collector) {
	t.Helper()
	store := memory.NewUsageStore()
	clk := clock.NewFake(baseTime)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Hour
	}
	tr := app.NewStoreTracker(store, clk, cfg, zerolog.Nop(), m)
	t.Cleanup(func() { tr.Close() })
	return tr, store, clk, m
}

func event(n int, keyID, endpoint string, status int, ms int64, at time.Time) usage.Event {
	return usage.Event{
		RequestID:        fmt.Sprintf("req-%d", n),
		APIKey:           keyID,
		UserID:           1,
		Endpoint:         endpoint,
		Method:           "GET",
		Timestamp:        at,
		ResponseStatus:   status,
		ProcessingTimeMs: ms,
	}
}

func TestStoreTracker_StatsSeesBufferedEvents(t *testing.T) {
	tr, store, _, m := newTracker(t, app.TrackerConfig{BatchSize: 100})
	ctx := context.Background()

	tr.Track(ctx, event(1, "key_a", "/filings/{cik}", 200, 10, baseTime.Add(-time.Hour)))
	tr.Track(ctx, event(2, "key_a", "/filings/{cik}", 500, 30, baseTime.Add(-time.Minute)))
	tr.Track(ctx, event(3, "key_a", "/usage", 200, 5, baseTime.Add(-2*time.Hour)))
	tr.Track(ctx, event(4, "key_b", "/usage", 200, 5, baseTime))

	if tr.Pending() != 4 || store.Len() != 0 {
		t.Fatalf("pending/stored = %d/%d, want 4/0", tr.Pending(), store.Len())
	}

	stats, err := tr.Stats(ctx, usage.Query{APIKey: "key_a", UserID: 1, Days: 30})
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if store.Len() != 4 {
		t.Errorf("stored = %d, want 4 after Stats", store.Len())
	}
	if stats.TotalRequests != 3 || stats.SuccessfulRequests != 2 || stats.ErrorRequests != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.AverageResponseTimeMs != 15 {
		t.Errorf("AverageResponseTimeMs = %v, want 15", stats.AverageResponseTimeMs)
	}
	if got := stats.EndpointStats["/filings/{cik}"]; got.Count != 2 || got.AvgTime != 20 {
		t.Errorf("endpoint stats = %+v", got)
	}
	if got := testutil.ToFloat64(m.UsageEvents.WithLabelValues(metrics.UsageRecorded)); got != 4 {
		t.Errorf("recorded metric = %v, want 4", got)
	}
}

func TestStoreTracker_StatsRepeatable(t *testing.T) {
	tr, _, _, _ := newTracker(t, app.TrackerConfig{})
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		tr.Track(ctx, event(i, "key_a", "/usage", 200+i*30, int64(i), baseTime.Add(-time.Duration(i)*time.Hour)))
	}

	q := usage.Query{APIKey: "key_a", Days: 7}
	first, _ := tr.Stats(ctx, q)
	second, _ := tr.Stats(ctx, q)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Stats() not repeatable:\n%+v\n%+v", first, second)
	}
}

func TestStoreTracker_ZeroDays(t *testing.T) {
	tr, _, _, _ := newTracker(t, app.TrackerConfig{})
	ctx := context.Background()
	tr.Track(ctx, event(1, "key_a", "/usage", 200, 10, baseTime))

	stats, err := tr.Stats(ctx, usage.Query{APIKey: "key_a", Days: 0})
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalRequests != 0 || stats.SuccessRate != 0 {
		t.Errorf("stats = %+v, want empty", stats)
	}
	if stats.EndpointStats == nil {
		t.Error("EndpointStats must be an empty map")
	}
}

func TestStoreTracker_DuplicateRequestIDRecordedOnce(t *testing.T) {
	tr, store, _, _ := newTracker(t, app.TrackerConfig{})
	ctx := context.Background()
	e := event(1, "key_a", "/usage", 200, 10, baseTime)

	tr.Track(ctx, e)
	tr.Flush(ctx)
	tr.Track(ctx, e)
	tr.Flush(ctx)

	if store.Len() != 1 {
		t.Errorf("stored = %d, want 1", store.Len())
	}
}

func TestStoreTracker_FullBatchFlushesInBackground(t *testing.T) {
	tr, store, _, _ := newTracker(t, app.TrackerConfig{BatchSize: 3})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		tr.Track(ctx, event(i, "key_a", "/usage", 200, 1, baseTime))
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("stored = %d, want 3 after a full batch", store.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStoreTracker_FailedBatchIsRetried(t *testing.T) {
	tr, store, _, m := newTracker(t, app.TrackerConfig{})
	ctx := context.Background()
	store.FailWith(errors.New("disk full"))

	tr.Track(ctx, event(1, "key_a", "/usage", 200, 1, baseTime))
	tr.Track(ctx, event(2, "key_a", "/usage", 200, 1, baseTime))

	err := tr.Flush(ctx)
	if !errors.Is(err, gate.ErrRecording) {
		t.Fatalf("Flush() error = %v, want ErrRecording", err)
	}
	if tr.Pending() != 2 {
		t.Errorf("pending = %d, want 2 after failed flush", tr.Pending())
	}
	if got := testutil.ToFloat64(m.UsageEvents.WithLabelValues(metrics.UsageFailed)); got != 2 {
		t.Errorf("failed metric = %v, want 2", got)
	}

	store.FailWith(nil)
	if err := tr.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if store.Len() != 2 || tr.Pending() != 0 {
		t.Errorf("stored/pending = %d/%d, want 2/0", store.Len(), tr.Pending())
	}
}

// batchRecorder remembers the size of every write.
type batchRecorder struct {
	*memory.UsageStore

	mu    sync.Mutex
	sizes []int
}

func (s *batchRecorder) RecordBatch(ctx context.Context, events []usage.Event) error {
	s.mu.Lock()
	s.sizes = append(s.sizes, len(events))
	s.mu.Unlock()
	return s.UsageStore.RecordBatch(ctx, events)
}

func (s *batchRecorder) largest() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, size := range s.sizes {
		n = max(n, size)
	}
	return n
}

func TestStoreTracker_BacklogDrainsInBatches(t *testing.T) {
	store := &batchRecorder{UsageStore: memory.NewUsageStore()}
	tr := app.NewStoreTracker(store, clock.NewFake(baseTime), app.TrackerConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
	}, zerolog.Nop(), nil)
	t.Cleanup(func() { tr.Close() })
	ctx := context.Background()

	store.FailWith(errors.New("connection refused"))
	for i := 0; i < 9000; i++ {
		if err := tr.Track(ctx, event(i, "key_a", "/usage", 200, 1, baseTime)); err != nil {
			t.Fatalf("Track(%d) error = %v", i, err)
		}
	}
	if err := tr.Flush(ctx); !errors.Is(err, gate.ErrRecording) {
		t.Fatalf("Flush() during outage error = %v, want ErrRecording", err)
	}
	if store.Len() != 0 {
		t.Fatalf("stored = %d during outage", store.Len())
	}

	store.FailWith(nil)
	if err := tr.Flush(ctx); err != nil {
		t.Fatalf("Flush() after recovery error = %v", err)
	}
	if store.Len() != 9000 || tr.Pending() != 0 {
		t.Errorf("stored/pending = %d/%d, want 9000/0", store.Len(), tr.Pending())
	}
	if got := store.largest(); got > 100 {
		t.Errorf("largest write = %d events, want at most 100", got)
	}
}

func TestStoreTracker_BufferBounded(t *testing.T) {
	tr, store, _, m := newTracker(t, app.TrackerConfig{BatchSize: 2, MaxBuffer: 3})
	ctx := context.Background()
	store.FailWith(errors.New("disk full"))

	for i := 0; i < 5; i++ {
		tr.Track(ctx, event(i, "key_a", "/usage", 200, 1, baseTime))
	}
	tr.Close()

	if tr.Pending() > 3 {
		t.Errorf("pending = %d, want at most 3", tr.Pending())
	}
	if got := testutil.ToFloat64(m.UsageEvents.WithLabelValues(metrics.UsageDropped)); got < 2 {
		t.Errorf("dropped metric = %v, want at least 2", got)
	}
}

func TestStoreTracker_InvalidEvent(t *testing.T) {
	tr, _, _, _ := newTracker(t, app.TrackerConfig{})

	err := tr.Track(context.Background(), usage.Event{APIKey: "key_a", Timestamp: baseTime})
	if !errors.Is(err, gate.ErrRecording) {
		t.Errorf("Track(no request ID) error = %v, want ErrRecording", err)
	}
	if tr.Pending() != 0 {
		t.Error("invalid event must not be buffered")
	}
}

func TestStoreTracker_CloseFlushes(t *testing.T) {
	tr, store, _, _ := newTracker(t, app.TrackerConfig{})
	ctx := context.Background()
	tr.Track(ctx, event(1, "key_a", "/usage", 200, 1, baseTime))

	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("stored = %d, want 1 after Close", store.Len())
	}
	if err := tr.Track(ctx, event(2, "key_a", "/usage", 200, 1, baseTime)); !errors.Is(err, app.ErrTrackerClosed) {
		t.Errorf("Track() after Close error = %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
