// Package ratelimit caps evaluation requests per caller identity within a
// fixed window. Counters live in a Store: in process memory by default, or
// in Redis when several instances share the limit.
package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Decision is the outcome of one counted request.
type Decision struct {
	Allowed bool
	Count   int
	ResetAt time.Time
}

// RetryAfter is the time left until the window resets.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.Before(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Store counts hits per key. Hit must increment atomically per key and must
// not increment once the limit is reached.
type Store interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	logger *slog.Logger
}

func New(store Store, limit int, window time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{store: store, limit: limit, window: window, logger: logger}
}

func (l *Limiter) Limit() int             { return l.limit }
func (l *Limiter) Window() time.Duration { return l.window }

// Allow counts a request from identity. A failing store lets the request
// through; the evaluator is still protected by its own quotas.
func (l *Limiter) Allow(ctx context.Context, identity string) Decision {
	d, err := l.store.Hit(ctx, identity, l.limit, l.window)
	if err != nil {
		l.logger.Warn("rate limit store failed, allowing request",
			"identity", identity,
			"error", err,
		)
		return Decision{Allowed: true}
	}
	return d
}
