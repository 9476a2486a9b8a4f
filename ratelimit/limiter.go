package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultPrefix namespaces limiter keys in the shared store.
const DefaultPrefix = "rate-limit:"

// Policy configures one class of protected operation.
type Policy struct {
	Points   int
	Duration time.Duration
	Prefix   string
}

// Limiter enforces a [Policy] against a shared [Store]. Several limiters with
// different policies may share one store as long as their prefixes differ.
type Limiter struct {
	store  Store
	policy Policy
}

// New creates a [Limiter]. Duration must be a positive whole number of seconds.
func New(store Store, policy Policy) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: nil store")
	}
	if policy.Points <= 0 {
		return nil, fmt.Errorf("%w: points must be > 0", ErrInvalidPolicy)
	}
	if policy.Duration < time.Second || policy.Duration%time.Second != 0 {
		return nil, fmt.Errorf("%w: duration must be a positive number of seconds", ErrInvalidPolicy)
	}
	if policy.Prefix == "" {
		policy.Prefix = DefaultPrefix
	}

	return &Limiter{store: store, policy: policy}, nil
}

// Policy returns the limiter configuration.
func (l *Limiter) Policy() Policy {
	return l.policy
}

// Check admits or rejects one request for key. Rejections return an
// [*ExceededError]; store failures are wrapped in [ErrStoreUnavailable].
func (l *Limiter) Check(ctx context.Context, key string) error {
	usage, err := l.store.Consume(ctx, l.key(key), l.policy.Points, l.policy.Duration)
	if err != nil {
		return wrapStoreErr(err)
	}
	if usage.Allowed {
		return nil
	}

	retryAfter := usage.TTL
	if retryAfter <= 0 || retryAfter > l.policy.Duration {
		retryAfter = l.policy.Duration
	}
	return &ExceededError{
		Key:        key,
		Limit:      l.policy.Points,
		Window:     l.policy.Duration,
		RetryAfter: retryAfter,
	}
}

// Reset clears the counter for key so the next Check starts a new window.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.store.Delete(ctx, l.key(key)); err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

func (l *Limiter) key(key string) string {
	return l.policy.Prefix + key
}

func wrapStoreErr(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
