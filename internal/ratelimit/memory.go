package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps counters in a mutex-guarded map. Expired entries are
// reset lazily on the next hit and removed by Sweep.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Hit(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || now.After(e.resetAt) {
		e = &entry{count: 1, resetAt: now.Add(window)}
		s.entries[key] = e
		return Decision{Allowed: true, Count: 1, ResetAt: e.resetAt}, nil
	}
	if e.count >= limit {
		return Decision{Allowed: false, Count: e.count, ResetAt: e.resetAt}, nil
	}
	e.count++
	return Decision{Allowed: true, Count: e.count, ResetAt: e.resetAt}, nil
}

// Sweep drops expired entries and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, e := range s.entries {
		if now.After(e.resetAt) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run sweeps every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}
