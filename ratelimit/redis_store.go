package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript returns {allowed, count, pttl}. A counter left without a TTL
// (for example after a crash between INCR and PEXPIRE in older writers) gets
// the window re-applied so it cannot block a key forever.
var consumeLua = redis.NewScript(`
local points = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= points then
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl < 0 then
    redis.call('PEXPIRE', KEYS[1], window)
    ttl = window
  end
  return {0, current, ttl}
end
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], window)
  ttl = window
end
return {1, count, ttl}
`)

// RedisStore is a [Store] backed by Redis, shared by every process that
// points at the same server.
type RedisStore struct {
	redis redis.UniversalClient
}

// NewRedisStore wraps a go-redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client}
}

// Consume implements [Store].
func (s *RedisStore) Consume(ctx context.Context, key string, points int, window time.Duration) (Usage, error) {
	if s == nil || s.redis == nil {
		return Usage{}, ErrStoreUnavailable
	}

	res, err := consumeLua.Run(ctx, s.redis, []string{key}, points, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Usage{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if len(res) != 3 {
		return Usage{}, fmt.Errorf("%w: unexpected script reply of %d values", ErrStoreUnavailable, len(res))
	}

	usage := Usage{
		Allowed: res[0] == 1,
		Count:   res[1],
	}
	if res[2] > 0 {
		usage.TTL = time.Duration(res[2]) * time.Millisecond
	}
	return usage, nil
}

// Delete implements [Store].
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.redis == nil {
		return ErrStoreUnavailable
	}
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Count reads the current counter for key. Missing keys return zero.
func (s *RedisStore) Count(ctx context.Context, key string) (int64, error) {
	if s == nil || s.redis == nil {
		return 0, ErrStoreUnavailable
	}
	count, err := s.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}
