package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiter(t *testing.T, policy Policy) (*Limiter, *miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	limiter, err := New(NewRedisStore(rdb), policy)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return limiter, mr, rdb
}

func TestCheckAdmitsUpToPointsThenRejects(t *testing.T) {
	limiter, _, _ := newRedisLimiter(t, Policy{Points: 5, Duration: time.Minute})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if err := limiter.Check(ctx, "1.2.3.4"); err != nil {
			t.Fatalf("call %d: expected admission, got %v", i, err)
		}
	}

	err := limiter.Check(ctx, "1.2.3.4")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("call 6: expected ErrRateLimited, got %v", err)
	}

	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected *ExceededError, got %T", err)
	}
	if exceeded.Limit != 5 || exceeded.Window != time.Minute {
		t.Fatalf("unexpected detail: %+v", exceeded)
	}
	if exceeded.RetryAfter <= 0 || exceeded.RetryAfter > time.Minute {
		t.Fatalf("retry after out of range: %s", exceeded.RetryAfter)
	}

	if err := limiter.Reset(ctx, "1.2.3.4"); err != nil {
		t.Fatalf("Reset error: %v", err)
	}
	if err := limiter.Check(ctx, "1.2.3.4"); err != nil {
		t.Fatalf("call 7 after reset: expected admission, got %v", err)
	}
}

func TestRejectionDoesNotMutateCounter(t *testing.T) {
	limiter, _, rdb := newRedisLimiter(t, Policy{Points: 2, Duration: time.Minute})
	store := NewRedisStore(rdb)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = limiter.Check(ctx, "k")

		got, err := store.Count(ctx, "rate-limit:k")
		if err != nil {
			t.Fatalf("Count error: %v", err)
		}
		want := int64(i + 1)
		if want > 2 {
			want = 2
		}
		if got != want {
			t.Fatalf("after call %d expected counter %d, got %d", i+1, want, got)
		}
	}
}

func TestRedisStoreCountMissingKeyIsZero(t *testing.T) {
	_, _, rdb := newRedisLimiter(t, Policy{Points: 1, Duration: time.Minute})

	got, err := NewRedisStore(rdb).Count(context.Background(), "rate-limit:absent")
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestNilRedisStoreIsUnavailable(t *testing.T) {
	var s *RedisStore
	ctx := context.Background()

	if _, err := s.Consume(ctx, "k", 1, time.Second); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Consume: expected ErrStoreUnavailable, got %v", err)
	}
	if err := s.Delete(ctx, "k"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Delete: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := s.Count(ctx, "k"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Count: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := NewRedisStore(nil).Count(ctx, "k"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Count with nil client: expected ErrStoreUnavailable, got %v", err)
	}
}

func TestWindowExpiryRestoresAdmission(t *testing.T) {
	limiter, mr, _ := newRedisLimiter(t, Policy{Points: 1, Duration: 60 * time.Second})
	ctx := context.Background()

	if err := limiter.Check(ctx, "k"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := limiter.Check(ctx, "k"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("second call: expected rejection, got %v", err)
	}

	if ttl := mr.TTL("rate-limit:k"); ttl != 60*time.Second {
		t.Fatalf("expected 60s TTL, got %s", ttl)
	}

	mr.FastForward(61 * time.Second)

	if err := limiter.Check(ctx, "k"); err != nil {
		t.Fatalf("after window: expected admission, got %v", err)
	}
}

func TestTTLSetOnlyOnWindowStart(t *testing.T) {
	limiter, mr, _ := newRedisLimiter(t, Policy{Points: 10, Duration: 30 * time.Second})
	ctx := context.Background()

	if err := limiter.Check(ctx, "k"); err != nil {
		t.Fatalf("Check error: %v", err)
	}
	mr.FastForward(10 * time.Second)
	if err := limiter.Check(ctx, "k"); err != nil {
		t.Fatalf("Check error: %v", err)
	}

	if ttl := mr.TTL("rate-limit:k"); ttl != 20*time.Second {
		t.Fatalf("expected window to keep original expiry (20s left), got %s", ttl)
	}
}

func TestCounterWithoutTTLIsRepaired(t *testing.T) {
	limiter, mr, _ := newRedisLimiter(t, Policy{Points: 3, Duration: time.Minute})
	ctx := context.Background()

	if err := mr.Set("rate-limit:k", "3"); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	if err := limiter.Check(ctx, "k"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if ttl := mr.TTL("rate-limit:k"); ttl <= 0 {
		t.Fatalf("expected TTL to be re-applied, got %s", ttl)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	limiter, _, _ := newRedisLimiter(t, Policy{Points: 1, Duration: time.Minute})
	ctx := context.Background()

	if err := limiter.Check(ctx, "a"); err != nil {
		t.Fatalf("a: %v", err)
	}
	if err := limiter.Check(ctx, "b"); err != nil {
		t.Fatalf("b: %v", err)
	}
	if err := limiter.Check(ctx, "a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("a again: expected rejection, got %v", err)
	}
}

func TestPoliciesWithDifferentPrefixesShareStore(t *testing.T) {
	_, _, rdb := newRedisLimiter(t, Policy{Points: 1, Duration: time.Minute})
	store := NewRedisStore(rdb)
	ctx := context.Background()

	emailCheck, err := New(store, Policy{Points: 1, Duration: time.Minute, Prefix: "rate-limit:check-email:"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	login, err := New(store, Policy{Points: 3, Duration: time.Minute, Prefix: "rate-limit:login:"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if err := emailCheck.Check(ctx, "ip"); err != nil {
		t.Fatalf("emailCheck: %v", err)
	}
	if err := emailCheck.Check(ctx, "ip"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("emailCheck again: expected rejection, got %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := login.Check(ctx, "ip"); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
	}
}

func TestConcurrentChecksNeverOvershoot(t *testing.T) {
	limiter, _, _ := newRedisLimiter(t, Policy{Points: 20, Duration: time.Minute})
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		admitted atomic.Int64
		rejected atomic.Int64
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := limiter.Check(ctx, "hot")
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, ErrRateLimited):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 20 {
		t.Fatalf("expected exactly 20 admissions, got %d", admitted.Load())
	}
	if rejected.Load() != 80 {
		t.Fatalf("expected 80 rejections, got %d", rejected.Load())
	}
}

func TestStoreFailurePropagates(t *testing.T) {
	limiter, mr, _ := newRedisLimiter(t, Policy{Points: 1, Duration: time.Minute})
	mr.Close()

	err := limiter.Check(context.Background(), "k")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, ErrRateLimited) {
		t.Fatal("store failure must not look like a rate limit")
	}

	if err := limiter.Reset(context.Background(), "k"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected Reset to report ErrStoreUnavailable, got %v", err)
	}
}

func TestNewRejectsInvalidPolicy(t *testing.T) {
	store := NewMemoryStore()

	cases := []Policy{
		{Points: 0, Duration: time.Minute},
		{Points: -1, Duration: time.Minute},
		{Points: 1, Duration: 0},
		{Points: 1, Duration: 500 * time.Millisecond},
		{Points: 1, Duration: 1500 * time.Millisecond},
	}
	for _, p := range cases {
		if _, err := New(store, p); !errors.Is(err, ErrInvalidPolicy) {
			t.Fatalf("policy %+v: expected ErrInvalidPolicy, got %v", p, err)
		}
	}

	if _, err := New(nil, Policy{Points: 1, Duration: time.Second}); err == nil {
		t.Fatal("expected nil store to be rejected")
	}
}

func TestDefaultPrefixApplied(t *testing.T) {
	limiter, err := New(NewMemoryStore(), Policy{Points: 1, Duration: time.Second})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if limiter.Policy().Prefix != DefaultPrefix {
		t.Fatalf("expected default prefix, got %q", limiter.Policy().Prefix)
	}
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want int
	}{
		{0, 1},
		{200 * time.Millisecond, 1},
		{time.Second, 1},
		{1001 * time.Millisecond, 2},
		{59 * time.Second, 59},
	}
	for _, tc := range cases {
		e := &ExceededError{RetryAfter: tc.in}
		if got := e.RetryAfterSeconds(); got != tc.want {
			t.Fatalf("RetryAfterSeconds(%s) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
