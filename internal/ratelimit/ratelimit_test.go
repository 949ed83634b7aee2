package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore() (*MemoryStore, *clock) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := NewMemoryStore()
	s.now = c.now
	return s, c
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWindow(t *testing.T) {
	store, clk := newTestStore()
	l := New(store, 10, time.Hour, discard())
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		d := l.Allow(ctx, "203.0.113.7")
		if !d.Allowed {
			t.Fatalf("request %d denied", i)
		}
		if d.Count != i {
			t.Errorf("request %d: count = %d", i, d.Count)
		}
	}

	d := l.Allow(ctx, "203.0.113.7")
	if d.Allowed {
		t.Fatal("11th request allowed")
	}
	if d.Count != 10 {
		t.Errorf("denied request changed count to %d", d.Count)
	}
	if got := d.RetryAfter(clk.now()); got != time.Hour {
		t.Errorf("RetryAfter = %v, want 1h", got)
	}

	// Exactly at the reset instant the window is still closed.
	clk.advance(time.Hour)
	if l.Allow(ctx, "203.0.113.7").Allowed {
		t.Fatal("allowed at resetAt")
	}

	clk.advance(time.Millisecond)
	d = l.Allow(ctx, "203.0.113.7")
	if !d.Allowed || d.Count != 1 {
		t.Fatalf("after window: allowed=%v count=%d, want true/1", d.Allowed, d.Count)
	}
}

func TestIdentitiesIndependent(t *testing.T) {
	store, _ := newTestStore()
	l := New(store, 1, time.Minute, discard())
	ctx := context.Background()

	if !l.Allow(ctx, "a").Allowed {
		t.Fatal("a denied")
	}
	if l.Allow(ctx, "a").Allowed {
		t.Fatal("second a allowed")
	}
	if !l.Allow(ctx, "b").Allowed {
		t.Fatal("b denied")
	}
}

func TestSweep(t *testing.T) {
	store, clk := newTestStore()
	ctx := context.Background()

	store.Hit(ctx, "old", 10, time.Minute)
	clk.advance(30 * time.Second)
	store.Hit(ctx, "new", 10, time.Minute)

	clk.advance(31 * time.Second)
	if n := store.Sweep(); n != 1 {
		t.Errorf("swept %d, want 1", n)
	}
	if store.Len() != 1 {
		t.Errorf("len = %d, want 1", store.Len())
	}
}

func TestConcurrentHitsNotUndercounted(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := store.Hit(ctx, "shared", 10, time.Hour)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 10 {
		t.Errorf("allowed = %d, want 10", allowed)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Run(ctx, time.Millisecond) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

type failingStore struct{}

func (failingStore) Hit(context.Context, string, int, time.Duration) (Decision, error) {
	return Decision{}, errors.New("connection refused")
}

func TestStoreFailureAllows(t *testing.T) {
	l := New(failingStore{}, 1, time.Hour, discard())
	for range 3 {
		if !l.Allow(context.Background(), "x").Allowed {
			t.Fatal("request denied on store failure")
		}
	}
}
