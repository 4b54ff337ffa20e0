package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/artpar/filinggate/adapters/metrics"
	"github.com/artpar/filinggate/domain/gate"
	"github.com/artpar/filinggate/domain/usage"
	"github.com/artpar/filinggate/ports"
	"github.com/rs/zerolog"
)

// ErrTrackerClosed is returned by Track after Close.
var ErrTrackerClosed = errors.New("usage tracker closed")

// TrackerConfig contains configuration for StoreTracker.
type TrackerConfig struct {
	BatchSize     int           // events per write (default 100)
	FlushInterval time.Duration // max time an event waits in the buffer (default 10s)
	MaxBuffer     int           // events held while the store is failing (default 10000)
}

// StoreTracker buffers usage events and writes them in batches to the store.
// Track never blocks on storage; failed batches are retried on the next
// flush, which is safe because stores ignore duplicate request IDs.
type StoreTracker struct {
	store   ports.UsageStore
	clock   ports.Clock
	logger  zerolog.Logger
	metrics *metrics.Collector // optional

	batchSize     int
	flushInterval time.Duration
	maxBuffer     int

	mu     sync.Mutex
	buffer []usage.Event
	closed bool

	writeMu sync.Mutex // one batch write at a time

	flushCh   chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewStoreTracker creates a tracker and starts its flush loop. m may be nil.
func NewStoreTracker(store ports.UsageStore, clk ports.Clock, cfg TrackerConfig, logger zerolog.Logger, m *metrics.Collector) *StoreTracker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.MaxBuffer < cfg.BatchSize {
		cfg.MaxBuffer = 100 * cfg.BatchSize
	}

	t := &StoreTracker{
		store:         store,
		clock:         clk,
		logger:        logger,
		metrics:       m,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		maxBuffer:     cfg.MaxBuffer,
		buffer:        make([]usage.Event, 0, cfg.BatchSize),
		flushCh:       make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
	}

	t.wg.Add(1)
	go t.flushLoop()

	return t
}

// Track queues a usage event.
func (t *StoreTracker) Track(ctx context.Context, e usage.Event) error {
	if err := e.Validate(); err != nil {
		t.count(metrics.UsageDropped, 1)
		return fmt.Errorf("%w: %v", gate.ErrRecording, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTrackerClosed
	}
	if len(t.buffer) >= t.maxBuffer {
		t.count(metrics.UsageDropped, 1)
		return fmt.Errorf("%w: buffer full", gate.ErrRecording)
	}

	t.buffer = append(t.buffer, e)
	if len(t.buffer) >= t.batchSize {
		select {
		case t.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Flush writes all buffered events in batches of BatchSize. When a batch
// fails, it and every batch after it go back to the buffer and the error
// is logged and returned.
func (t *StoreTracker) Flush(ctx context.Context) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	if len(t.buffer) == 0 {
		t.mu.Unlock()
		return nil
	}
	events := make([]usage.Event, len(t.buffer))
	copy(events, t.buffer)
	t.buffer = t.buffer[:0]
	t.mu.Unlock()

	for len(events) > 0 {
		batch := events[:min(len(events), t.batchSize)]

		start := time.Now()
		err := t.store.RecordBatch(ctx, batch)
		if t.metrics != nil {
			t.metrics.UsageFlushDuration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			t.count(metrics.UsageFailed, len(batch))
			t.logger.Error().Err(err).Int("events", len(batch)).Int("pending", len(events)).Msg("usage batch write failed")
			t.requeue(events)
			return fmt.Errorf("%w: %v", gate.ErrRecording, err)
		}

		t.count(metrics.UsageRecorded, len(batch))
		events = events[len(batch):]
	}
	return nil
}

// requeue puts a failed batch back in front of newer events, dropping
// whatever does not fit.
func (t *StoreTracker) requeue(events []usage.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	merged := append(events, t.buffer...)
	if over := len(merged) - t.maxBuffer; over > 0 {
		merged = merged[over:]
		t.count(metrics.UsageDropped, over)
		t.logger.Warn().Int("dropped", over).Msg("usage buffer full, dropping oldest events")
	}
	t.buffer = merged
}

// Stats flushes pending events and summarizes the key's usage over the
// last q.Days days.
func (t *StoreTracker) Stats(ctx context.Context, q usage.Query) (usage.Stats, error) {
	// A failed flush is already logged; the stored events are still valid.
	_ = t.Flush(ctx)

	period := usage.NewPeriod(t.clock.Now(), q.Days)
	if period.Days == 0 {
		return usage.Aggregate(nil, period), nil
	}

	events, err := t.store.Events(ctx, period.Filter(q.APIKey, q.UserID))
	if err != nil {
		return usage.Stats{}, fmt.Errorf("load usage events: %w", err)
	}
	return usage.Aggregate(events, period), nil
}

// Pending returns the number of buffered events.
func (t *StoreTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffer)
}

func (t *StoreTracker) flushLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-t.flushCh:
		case <-t.stopCh:
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		t.Flush(ctx)
		cancel()
	}
}

// Close stops the flush loop and writes remaining events.
func (t *StoreTracker) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()

		close(t.stopCh)
		t.wg.Wait()

		// Final flush with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = t.Flush(ctx)
	})
	return err
}

func (t *StoreTracker) count(result string, n int) {
	if t.metrics != nil && n > 0 {
		t.metrics.UsageEvents.WithLabelValues(result).Add(float64(n))
	}
}

// Ensure interface compliance.
var _ ports.UsageTracker = (*StoreTracker)(nil)
