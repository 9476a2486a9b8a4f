package ratelimit

import (
	"context"
	"time"
)

// Usage is the outcome of a single [Store.Consume] call.
type Usage struct {
	Allowed bool
	// Count is the counter value after the call (unchanged when rejected).
	Count int64
	// TTL is the remaining lifetime of the window. Zero if unknown.
	TTL time.Duration
}

// Store is the key-value contract consumed by [Limiter].
//
// Consume must behave as one conditional increment: when the stored value is
// below points it increments (creating the key at 1 with the given window as
// TTL) and reports Allowed; otherwise it reports the current state without
// mutating it.
type Store interface {
	Consume(ctx context.Context, key string, points int, window time.Duration) (Usage, error)
	Delete(ctx context.Context, key string) error
}
