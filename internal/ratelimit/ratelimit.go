// Package ratelimit implements fixed-window request counting keyed by
// (operation, actor). The counter backend is injectable so a single-instance
// deployment can run on an in-process map while multi-instance deployments
// share a Redis counter.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Counter increments the count for a key inside the current fixed window and
// returns the new count plus the time remaining until the window resets.
// Implementations must be safe for concurrent use.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, reset time.Duration, err error)
}

// Rule is a fixed-window limit: at most Limit calls per Window.
type Rule struct {
	Limit  int64
	Window time.Duration
}

// LimitError reports a rejected call and how long the caller should wait.
type LimitError struct {
	Operation  string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.Operation, e.RetryAfter)
}

type Limiter struct {
	counter Counter
}

func New(counter Counter) *Limiter {
	return &Limiter{counter: counter}
}

// Allow records one call for (operation, actorID) and returns a *LimitError
// when the rule's limit is exceeded inside the current window. Counter
// failures are returned as-is: gateways treat them as store failures rather
// than silently admitting traffic.
func (l *Limiter) Allow(ctx context.Context, operation, actorID string, rule Rule) error {
	if rule.Limit <= 0 {
		return nil
	}
	key := operation + ":" + actorID
	count, reset, err := l.counter.Incr(ctx, key, rule.Window)
	if err != nil {
		return fmt.Errorf("rate limit counter: %w", err)
	}
	if count > rule.Limit {
		return &LimitError{Operation: operation, RetryAfter: reset}
	}
	return nil
}
