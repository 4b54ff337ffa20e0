package memory

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/artpar/filinggate/domain/ratelimit"
	"github.com/artpar/filinggate/ports"
)

type counter struct {
	count     int64
	expiresAt time.Time // zero = no expiry
}

func (c counter) live(now time.Time) bool {
	return c.expiresAt.IsZero() || now.Before(c.expiresAt)
}

// counterShard is a single shard of the counter store.
type counterShard struct {
	mu       sync.Mutex
	counters map[string]counter
}

// CounterStore is a sharded in-memory ports.CounterStore.
// Suitable for a single process; counters are lost on restart.
type CounterStore struct {
	shards  []*counterShard
	clock   ports.Clock
	cleanup *time.Ticker
	done    chan struct{}
	once    sync.Once
}

// CounterStoreConfig configures the in-memory counter store.
type CounterStoreConfig struct {
	NumShards       int           // Number of shards (default: 32)
	CleanupInterval time.Duration // How often expired counters are dropped (default: 1m)
}

// NewCounterStore creates a sharded in-memory counter store and starts
// its cleanup loop. Call Close to stop it.
func NewCounterStore(clk ports.Clock, cfg CounterStoreConfig) *CounterStore {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	s := &CounterStore{
		shards:  make([]*counterShard, cfg.NumShards),
		clock:   clk,
		cleanup: time.NewTicker(cfg.CleanupInterval),
		done:    make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &counterShard{counters: make(map[string]counter)}
	}

	go s.cleanupLoop()
	return s
}

func (s *CounterStore) shardIndex(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.shards)))
}

func (s *CounterStore) shard(key string) *counterShard {
	return s.shards[s.shardIndex(key)]
}

// Increment atomically adds one and returns the new count.
func (s *CounterStore) Increment(ctx context.Context, key string) (int64, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	c := sh.counters[key]
	if !c.live(s.clock.Now()) {
		c = counter{}
	}
	c.count++
	sh.counters[key] = c
	return c.count, nil
}

// Get returns the current count, zero when missing or expired.
func (s *CounterStore) Get(ctx context.Context, key string) (int64, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	c, ok := sh.counters[key]
	if !ok || !c.live(s.clock.Now()) {
		return 0, nil
	}
	return c.count, nil
}

// Expire sets the key to expire ttl from now. Missing keys are ignored.
func (s *CounterStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	c, ok := sh.counters[key]
	if !ok {
		return nil
	}
	c.expiresAt = s.clock.Now().Add(ttl)
	sh.counters[key] = c
	return nil
}

// Ping always succeeds.
func (s *CounterStore) Ping(ctx context.Context) error {
	return nil
}

// Admit checks and increments all counters under the locks of every
// shard involved. Shards are locked in index order.
func (s *CounterStore) Admit(ctx context.Context, counters []ratelimit.Counter) ([]int64, bool, error) {
	idx := make([]int, 0, len(counters))
	seen := make(map[int]bool, len(counters))
	for _, c := range counters {
		i := s.shardIndex(c.Key)
		if !seen[i] {
			seen[i] = true
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	for _, i := range idx {
		s.shards[i].mu.Lock()
	}
	defer func() {
		for _, i := range idx {
			s.shards[i].mu.Unlock()
		}
	}()

	now := s.clock.Now()
	counts := make([]int64, len(counters))
	admitted := true
	for i, rc := range counters {
		c := s.shard(rc.Key).counters[rc.Key]
		if c.live(now) {
			counts[i] = c.count
		}
		if counts[i] >= rc.Limit {
			admitted = false
		}
	}
	if !admitted {
		return counts, false, nil
	}

	for i, rc := range counters {
		sh := s.shard(rc.Key)
		c := sh.counters[rc.Key]
		if !c.live(now) || c.count == 0 {
			c = counter{expiresAt: rc.End}
		}
		c.count++
		sh.counters[rc.Key] = c
		counts[i] = c.count
	}
	return counts, true, nil
}

func (s *CounterStore) cleanupLoop() {
	for {
		select {
		case <-s.cleanup.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

// sweep drops expired counters.
func (s *CounterStore) sweep() {
	now := s.clock.Now()
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, c := range sh.counters {
			if !c.live(now) {
				delete(sh.counters, k)
			}
		}
		sh.mu.Unlock()
	}
}

// Close stops the cleanup goroutine.
func (s *CounterStore) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.cleanup.Stop()
	})
	return nil
}

// Len returns the number of stored counters, expired or not (for testing).
func (s *CounterStore) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.counters)
		sh.mu.Unlock()
	}
	return total
}

var _ ports.CounterStore = (*CounterStore)(nil)
