package bootstrap

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SweepFunc removes expired rows and reports how many were removed.
type SweepFunc func(ctx context.Context) (int64, error)

type sweep struct {
	name string
	fn   SweepFunc
}

// Janitor periodically runs sweeps over the stores that do not expire
// rows on their own: SQLite counters and stored usage past retention.
type Janitor struct {
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	sweeps []sweep
}

// NewJanitor creates a janitor that runs every interval.
func NewJanitor(interval time.Duration, logger zerolog.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{
		interval: interval,
		logger:   logger,
	}
}

// Add registers a sweep.
func (j *Janitor) Add(name string, fn SweepFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sweeps = append(j.sweeps, sweep{name: name, fn: fn})
}

// Len returns the number of registered sweeps.
func (j *Janitor) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.sweeps)
}

// Sweep runs every registered sweep once. A failing sweep is logged and
// does not stop the others.
func (j *Janitor) Sweep(ctx context.Context) {
	j.mu.Lock()
	sweeps := make([]sweep, len(j.sweeps))
	copy(sweeps, j.sweeps)
	j.mu.Unlock()

	for _, s := range sweeps {
		n, err := s.fn(ctx)
		if err != nil {
			j.logger.Warn().Err(err).Str("sweep", s.name).Msg("sweep failed")
			continue
		}
		if n > 0 {
			j.logger.Debug().Str("sweep", s.name).Int64("removed", n).Msg("sweep complete")
		}
	}
}

// Run sweeps on every tick until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Sweep(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}
