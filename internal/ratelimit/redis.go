package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript returns {allowed, count, pttl}. The key's TTL is the window, so
// Redis expires entries itself and no sweeper is needed.
var hitScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
  redis.call('SET', KEYS[1], 1, 'PX', ARGV[2])
  return {1, 1, tonumber(ARGV[2])}
end
current = tonumber(current)
local ttl = redis.call('PTTL', KEYS[1])
if current >= tonumber(ARGV[1]) then
  return {0, current, ttl}
end
redis.call('INCR', KEYS[1])
return {1, current + 1, ttl}
`)

// RedisStore shares counters between instances.
type RedisStore struct {
	client redis.Scripter
	prefix string
	now    func() time.Time
}

func NewRedisStore(client redis.Scripter, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	res, err := hitScript.Run(ctx, s.client, []string{s.prefix + key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("running rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("unexpected rate limit reply %v", res)
	}
	ttl := time.Duration(res[2]) * time.Millisecond
	if ttl < 0 {
		ttl = window
	}
	return Decision{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		ResetAt: s.now().Add(ttl),
	}, nil
}
