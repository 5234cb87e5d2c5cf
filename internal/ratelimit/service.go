package ratelimit

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// NewService selects the throttle backend: RedisLimiter when redisClient is
// non-nil, otherwise the in-process-only fallback. keyPrefix namespaces the
// counters this service owns from any other Limiter sharing the same Redis
// instance.
func NewService(ctx context.Context, redisClient *redis.Client, cfg Config, keyPrefix string) Limiter {
	if redisClient != nil {
		slog.Info("rate limiter using redis backend", "key_prefix", keyPrefix, "max_attempts", cfg.MaxAttempts, "window", cfg.Window)
		return NewRedisLimiter(redisClient, cfg, keyPrefix)
	}
	slog.Info("rate limiter using in-process backend", "key_prefix", keyPrefix, "max_attempts", cfg.MaxAttempts, "window", cfg.Window)
	return NewInProcessLimiter(ctx, cfg)
}
