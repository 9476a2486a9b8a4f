// Command gatekeep-loadtest drives the admission controller and credential
// verifier concurrently and reports throughput and latency percentiles.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/staynest/gatekeep/password"
	"github.com/staynest/gatekeep/ratelimit"
)

func main() {
	var (
		keys        = flag.Int("keys", 10000, "distinct caller keys")
		points      = flag.Int("points", 10, "admitted requests per key and window")
		window      = flag.Duration("window", time.Minute, "admission window")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "admission checks to run")
		verifyOps   = flag.Int("verify-ops", 2000, "credential verifications to run")
		scryptN     = flag.Int("scrypt-n", 16384, "scrypt cost parameter")
		storeKind   = flag.String("store", "redis", "admission store: redis or memory")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *keys <= 0 || *concurrency <= 0 || *ops <= 0 || *verifyOps <= 0 {
		fmt.Fprintln(os.Stderr, "keys, concurrency, ops, and verify-ops must be > 0")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, cleanup, err := openStore(ctx, *storeKind, *redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	limiter, err := ratelimit.New(store, ratelimit.Policy{
		Points:   *points,
		Duration: *window,
		Prefix:   "loadtest:",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "limiter: %v\n", err)
		os.Exit(2)
	}

	verifier, err := password.NewVerifier(password.Config{
		Algorithm: password.AlgorithmScrypt,
		Scrypt:    password.ScryptParams{N: *scryptN, R: 8, P: 1},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "verifier: %v\n", err)
		os.Exit(2)
	}

	admission := runAdmissionPhase(ctx, limiter, *keys, *ops, *concurrency)
	verify, err := runVerifyPhase(verifier, *verifyOps, *concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify phase: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("---- results ----")
	printStats("admission", admission.phaseStats)
	fmt.Printf("admission: allowed=%d rejected=%d ceiling=%d\n", admission.allowed, admission.rejected, *keys**points)
	printStats("verify", verify)

	if admission.allowed > int64(*keys**points) {
		fmt.Fprintln(os.Stderr, "admitted more requests than the ceiling allows")
		os.Exit(1)
	}
}

func openStore(ctx context.Context, kind, addr string) (ratelimit.Store, func(), error) {
	if kind == "memory" {
		s := ratelimit.NewMemoryStore()
		s.StartJanitor(ctx)
		fmt.Println("using in-process memory store")
		return s, func() {}, nil
	}
	if kind != "redis" {
		return nil, nil, fmt.Errorf("unknown store %q", kind)
	}

	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return ratelimit.NewRedisStore(client), func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	fmt.Printf("using redis at %s\n", addr)
	return ratelimit.NewRedisStore(client), func() { _ = client.Close() }, nil
}

type admissionStats struct {
	phaseStats
	allowed  int64
	rejected int64
}

func runAdmissionPhase(ctx context.Context, limiter *ratelimit.Limiter, keys, ops, concurrency int) admissionStats {
	var (
		allowed  int64
		rejected int64
		failures int64
	)
	rec := newRecorder(ops)

	start := time.Now()
	runWorkers(ops, concurrency, func(worker, _ int, r *rand.Rand) {
		key := fmt.Sprintf("caller-%d", r.Intn(keys))
		t0 := time.Now()
		err := limiter.Check(ctx, key)
		rec.add(time.Since(t0))

		switch {
		case err == nil:
			atomic.AddInt64(&allowed, 1)
		case errors.Is(err, ratelimit.ErrRateLimited):
			atomic.AddInt64(&rejected, 1)
		default:
			atomic.AddInt64(&failures, 1)
		}
	})

	return admissionStats{
		phaseStats: computeStats(time.Since(start), rec.samples, failures),
		allowed:    allowed,
		rejected:   rejected,
	}
}

func runVerifyPhase(v *password.Verifier, ops, concurrency int) (phaseStats, error) {
	const secret = "load-test-secret"
	rec, err := v.Derive(secret)
	if err != nil {
		return phaseStats{}, err
	}

	var failures int64
	samples := newRecorder(ops)

	start := time.Now()
	runWorkers(ops, concurrency, func(_, i int, _ *rand.Rand) {
		candidate := secret
		if i%2 == 1 {
			candidate = "wrong-secret"
		}
		t0 := time.Now()
		ok := v.VerifyRecord(candidate, rec)
		samples.add(time.Since(t0))
		if ok != (i%2 == 0) {
			atomic.AddInt64(&failures, 1)
		}
	})

	return computeStats(time.Since(start), samples.samples, failures), nil
}

// runWorkers calls fn ops times spread over concurrency goroutines.
func runWorkers(ops, concurrency int, fn func(worker, i int, r *rand.Rand)) {
	var (
		wg     sync.WaitGroup
		cursor int64
	)
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				fn(worker, i, r)
			}
		}(w)
	}
	wg.Wait()
}

type recorder struct {
	mu      sync.Mutex
	samples []time.Duration
}

func newRecorder(capacity int) *recorder {
	return &recorder{samples: make([]time.Duration, 0, capacity)}
}

func (r *recorder) add(d time.Duration) {
	r.mu.Lock()
	r.samples = append(r.samples, d)
	r.mu.Unlock()
}
