package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited is matched by every rejection returned from [Limiter.Check].
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrStoreUnavailable wraps failures of the backing key-value store.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
	// ErrInvalidPolicy is returned by [New] for non-positive points or sub-second windows.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
)

// ExceededError describes a rejected request. RetryAfter is the remaining
// lifetime of the current window; Window is the configured duration.
type ExceededError struct {
	Key        string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q: %d requests per %s, retry after %s",
		e.Key, e.Limit, e.Window, e.RetryAfter)
}

// Is reports whether target is [ErrRateLimited].
func (e *ExceededError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below 1.
func (e *ExceededError) RetryAfterSeconds() int {
	if e == nil || e.RetryAfter <= 0 {
		return 1
	}
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
