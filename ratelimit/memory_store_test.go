package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStoreFixedWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := NewMemoryStore(WithClock(clock.Now))
	limiter, err := New(store, Policy{Points: 5, Duration: 60 * time.Second})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if err := limiter.Check(ctx, "1.2.3.4"); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	clock.Advance(15 * time.Second)
	err = limiter.Check(ctx, "1.2.3.4")
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("call 6: expected *ExceededError, got %v", err)
	}
	if exceeded.RetryAfter != 45*time.Second {
		t.Fatalf("expected 45s remaining, got %s", exceeded.RetryAfter)
	}

	clock.Advance(45 * time.Second)
	if err := limiter.Check(ctx, "1.2.3.4"); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestMemoryStoreReset(t *testing.T) {
	store := NewMemoryStore()
	limiter, err := New(store, Policy{Points: 1, Duration: time.Hour})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	ctx := context.Background()

	_ = limiter.Check(ctx, "k")
	if err := limiter.Check(ctx, "k"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if err := limiter.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset error: %v", err)
	}
	if err := limiter.Check(ctx, "k"); err != nil {
		t.Fatalf("after reset: %v", err)
	}
}

func TestMemoryStoreCleanupDropsExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	_, _ = store.Consume(ctx, "a", 1, time.Second)
	_, _ = store.Consume(ctx, "b", 1, time.Minute)
	clock.Advance(2 * time.Second)
	store.Cleanup()

	if store.Len() != 1 {
		t.Fatalf("expected one live window, got %d", store.Len())
	}
}

func TestMemoryStoreJanitorStopsWithContext(t *testing.T) {
	store := NewMemoryStore(WithCleanupEvery(5 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	_, _ = store.Consume(ctx, "a", 1, time.Millisecond)
	store.StartJanitor(ctx)

	deadline := time.Now().Add(time.Second)
	for store.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("janitor did not remove expired window")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
}
