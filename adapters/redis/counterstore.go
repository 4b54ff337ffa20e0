// Package redis provides a Redis implementation of the counter store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/artpar/filinggate/domain/ratelimit"
	"github.com/artpar/filinggate/ports"
	goredis "github.com/redis/go-redis/v9"
)

// admitScript checks every counter against its limit and, only if all
// are below, increments them. KEYS are counter keys; ARGV holds the limits
// followed by the expiry (unix ms) for each key. New counters get their
// expiry. Returns {admitted, count1, count2, ...}.
var admitScript = goredis.NewScript(`
local n = #KEYS
local counts = {}
for i = 1, n do
	counts[i] = tonumber(redis.call('GET', KEYS[i]) or '0')
end
for i = 1, n do
	if counts[i] >= tonumber(ARGV[i]) then
		return {0, unpack(counts)}
	end
end
for i = 1, n do
	counts[i] = redis.call('INCR', KEYS[i])
	if counts[i] == 1 then
		redis.call('PEXPIREAT', KEYS[i], ARGV[n + i])
	end
end
return {1, unpack(counts)}
`)

// Config configures the Redis connection.
type Config struct {
	URL         string
	PoolSize    int
	DialTimeout time.Duration
}

// Open parses a redis:// URL and returns a connected client.
func Open(ctx context.Context, cfg Config) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// CounterStore implements ports.CounterStore on Redis.
type CounterStore struct {
	client goredis.UniversalClient
}

// NewCounterStore wraps a Redis client. The store owns the client and
// closes it on Close.
func NewCounterStore(client goredis.UniversalClient) *CounterStore {
	return &CounterStore{client: client}
}

// Increment atomically adds one and returns the new count.
func (s *CounterStore) Increment(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

// Get returns the current count, zero when the key does not exist.
func (s *CounterStore) Get(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return n, err
}

// Expire sets the key to expire ttl from now.
func (s *CounterStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

// Ping checks the connection.
func (s *CounterStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Admit runs the check-and-increment script.
func (s *CounterStore) Admit(ctx context.Context, counters []ratelimit.Counter) ([]int64, bool, error) {
	keys := make([]string, len(counters))
	args := make([]any, 0, 2*len(counters))
	for i, c := range counters {
		keys[i] = c.Key
		args = append(args, strconv.FormatInt(c.Limit, 10))
	}
	for _, c := range counters {
		args = append(args, strconv.FormatInt(c.End.UnixMilli(), 10))
	}

	vals, err := admitScript.Run(ctx, s.client, keys, args...).Int64Slice()
	if err != nil {
		return nil, false, err
	}
	if len(vals) != len(counters)+1 {
		return nil, false, fmt.Errorf("admit script: unexpected reply length %d", len(vals))
	}
	return vals[1:], vals[0] == 1, nil
}

// Close closes the client.
func (s *CounterStore) Close() error {
	return s.client.Close()
}

var _ ports.CounterStore = (*CounterStore)(nil)
