package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestCounter(t *testing.T) (*RedisCounter, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	counter, err := NewRedisCounter("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis counter: %v", err)
	}
	return counter, s
}

func TestNewRedisCounter(t *testing.T) {
	counter, s := setupTestCounter(t)
	defer counter.Close()
	defer s.Close()

	if err := counter.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestRedisCounterIncr(t *testing.T) {
	counter, s := setupTestCounter(t)
	defer counter.Close()
	defer s.Close()

	ctx := context.Background()
	window := 10 * time.Minute

	count, reset, err := counter.Incr(ctx, "vote:par_1", window)
	if err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}
	if reset != window {
		t.Errorf("expected fresh window reset %s, got %s", window, reset)
	}

	count, reset, err = counter.Incr(ctx, "vote:par_1", window)
	if err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}
	if reset <= 0 || reset > window {
		t.Errorf("reset out of range: %s", reset)
	}
}

func TestRedisCounterWindowExpiry(t *testing.T) {
	counter, s := setupTestCounter(t)
	defer counter.Close()
	defer s.Close()

	ctx := context.Background()
	window := time.Minute

	for i := 0; i < 5; i++ {
		if _, _, err := counter.Incr(ctx, "submission:par_2", window); err != nil {
			t.Fatalf("Incr failed: %v", err)
		}
	}

	s.FastForward(window + time.Second)

	count, _, err := counter.Incr(ctx, "submission:par_2", window)
	if err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected fresh window count 1 after expiry, got %d", count)
	}
}

func TestLimiterOverRedisCounter(t *testing.T) {
	counter, s := setupTestCounter(t)
	defer counter.Close()
	defer s.Close()

	limiter := New(counter)
	ctx := context.Background()
	rule := Rule{Limit: 2, Window: time.Minute}

	if err := limiter.Allow(ctx, "vote_batch", "par_3", rule); err != nil {
		t.Fatalf("first call limited: %v", err)
	}
	if err := limiter.Allow(ctx, "vote_batch", "par_3", rule); err != nil {
		t.Fatalf("second call limited: %v", err)
	}

	err := limiter.Allow(ctx, "vote_batch", "par_3", rule)
	var limitErr *LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected LimitError, got %v", err)
	}

	s.FastForward(2 * time.Minute)

	if err := limiter.Allow(ctx, "vote_batch", "par_3", rule); err != nil {
		t.Fatalf("call after window expiry limited: %v", err)
	}
}
