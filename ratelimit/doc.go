// Package ratelimit implements fixed-window admission control over a shared
// key-value store.
//
// # Window semantics
//
// A window starts with the first admitted request for a key: the counter is
// created at 1 with a TTL equal to the policy duration. Every further
// admitted request increments it. Once the counter reaches the policy's
// points, requests are rejected without touching the counter until the TTL
// elapses or [Limiter.Reset] deletes the key.
//
// The read, the increment and the expiry run as one [Store.Consume] call, so
// concurrent callers racing at the boundary cannot overshoot the ceiling on
// stores that implement Consume atomically ([RedisStore] does so with a Lua
// script, [MemoryStore] with a mutex).
//
// Keys are namespaced as Policy.Prefix + caller key, "rate-limit:" by default.
//
// # What this package must NOT do
//
//   - Retry store operations or decide fail-open vs fail-closed; callers own that policy.
//   - Take in-process locks around a shared store.
package ratelimit
