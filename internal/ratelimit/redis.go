package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript atomically increments the counter for a key and sets
// its expiry on first increment, so a crash between INCR and EXPIRE can
// never leave a key with no TTL. Mirrors the check-then-act Lua idiom used
// by the leader package's Redis lock.
var fixedWindowScript = redis.NewScript(`
	local count = redis.call("incr", KEYS[1])
	if count == 1 then
		redis.call("pexpire", KEYS[1], ARGV[1])
	end
	local ttl = redis.call("pttl", KEYS[1])
	return {count, ttl}
`)

// RedisLimiter enforces Config with a fixed-window counter shared across
// every process pointed at the same Redis instance, making it the
// authoritative backend when multiple API instances are behind one load
// balancer.
type RedisLimiter struct {
	client    *redis.Client
	cfg       Config
	keyPrefix string
}

// NewRedisLimiter builds a RedisLimiter. keyPrefix namespaces counters from
// other uses of the same Redis instance (e.g. "ratelimit:login:").
func NewRedisLimiter(client *redis.Client, cfg Config, keyPrefix string) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: cfg, keyPrefix: keyPrefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	redisKey := l.keyPrefix + key
	windowMillis := l.cfg.Window.Milliseconds()

	raw, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMillis).Result()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: redis script failed: %w", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return Result{}, fmt.Errorf("ratelimit: unexpected script result %#v", raw)
	}
	count, _ := values[0].(int64)
	ttlMillis, _ := values[1].(int64)

	if count <= int64(l.cfg.MaxAttempts) {
		return Result{Allowed: true}, nil
	}
	return Result{Allowed: false, RetryAfter: time.Duration(ttlMillis) * time.Millisecond}, nil
}
