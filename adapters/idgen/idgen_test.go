package idgen_test

import (
	"sync"
	"testing"

	"github.com/artpar/filinggate/adapters/idgen"
)

func TestUUID_New(t *testing.T) {
	g := idgen.UUID{}

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := g.New()
		if !idgen.Valid(id) {
			t.Fatalf("ID %q is not a UUID", id)
		}
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestValid(t *testing.T) {
	if idgen.Valid("not-a-uuid") {
		t.Error("Valid accepted garbage")
	}
	if !idgen.Valid("3f1c1a2e-8d4b-4c6e-9f0a-1b2c3d4e5f60") {
		t.Error("Valid rejected a UUID")
	}
}

func TestSequential(t *testing.T) {
	g := idgen.NewSequential("req_")
	if got := g.New(); got != "req_1" {
		t.Errorf("first = %q, want req_1", got)
	}
	if got := g.New(); got != "req_2" {
		t.Errorf("second = %q, want req_2", got)
	}
}

func TestSequential_Concurrent(t *testing.T) {
	g := idgen.NewSequential("")
	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.New()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Errorf("unique IDs = %d, want 50", len(seen))
	}
}
