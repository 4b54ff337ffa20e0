package redis_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/artpar/filinggate/adapters/redis"
	"github.com/artpar/filinggate/domain/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

var t0 = time.Date(2024, 1, 15, 12, 0, 10, 0, time.UTC)

func setup(t *testing.T) (*redis.CounterStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	mr.SetTime(t0)

	store := redis.NewCounterStore(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestCounterStore_IncrementGetExpire(t *testing.T) {
	store, mr := setup(t)
	ctx := context.Background()

	if n, err := store.Get(ctx, "k"); err != nil || n != 0 {
		t.Errorf("Get(missing) = %d, %v, want 0", n, err)
	}
	for i := int64(1); i <= 2; i++ {
		n, err := store.Increment(ctx, "k")
		if err != nil || n != i {
			t.Errorf("Increment() = %d, %v, want %d", n, err, i)
		}
	}
	if err := store.Expire(ctx, "k", 30*time.Second); err != nil {
		t.Fatalf("Expire() error = %v", err)
	}
	if ttl := mr.TTL("k"); ttl != 30*time.Second {
		t.Errorf("TTL = %v, want 30s", ttl)
	}

	mr.FastForward(30 * time.Second)
	if n, _ := store.Get(ctx, "k"); n != 0 {
		t.Errorf("Get() after expiry = %d, want 0", n)
	}
}

func TestCounterStore_Ping(t *testing.T) {
	store, mr := setup(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	mr.Close()
	if err := store.Ping(context.Background()); err == nil {
		t.Error("Ping() should fail when redis is down")
	}
}

func TestCounterStore_Admit(t *testing.T) {
	store, mr := setup(t)
	ctx := context.Background()
	counters := ratelimit.Counters("rl", "key_1", ratelimit.Policy{RequestsPerMinute: 2, RequestsPerDay: 100}, t0)

	for i := int64(1); i <= 2; i++ {
		counts, ok, err := store.Admit(ctx, counters)
		if err != nil {
			t.Fatalf("Admit() error = %v", err)
		}
		if !ok || counts[0] != i || counts[1] != i {
			t.Errorf("Admit() #%d = %v, %v", i, counts, ok)
		}
	}

	counts, ok, err := store.Admit(ctx, counters)
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if ok {
		t.Error("third Admit() should be rejected")
	}
	if counts[0] != 2 || counts[1] != 2 {
		t.Errorf("rejected counts = %v, want [2 2]", counts)
	}

	if ttl := mr.TTL(counters[0].Key); ttl != 50*time.Second {
		t.Errorf("minute TTL = %v, want 50s (window end)", ttl)
	}
	if got, _ := mr.Get(counters[1].Key); got != "2" {
		t.Errorf("day counter = %q, want 2", got)
	}
}

func TestCounterStore_AdmitConcurrent(t *testing.T) {
	store, _ := setup(t)
	ctx := context.Background()
	counters := ratelimit.Counters("rl", "k", ratelimit.Policy{RequestsPerMinute: 7, RequestsPerDay: 100}, t0)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := store.Admit(ctx, counters); err == nil && ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 7 {
		t.Errorf("admitted = %d, want 7", got)
	}
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := redis.Open(context.Background(), redis.Config{URL: "redis://" + mr.Addr() + "/0", PoolSize: 4})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer client.Close()

	if _, err := redis.Open(context.Background(), redis.Config{URL: "not-a-url"}); err == nil {
		t.Error("Open() should reject a bad URL")
	}
}
