package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// InProcessLimiter enforces Config per key using one golang.org/x/time/rate
// token bucket per key, the same rate.NewLimiter construction the teacher
// uses for its pool-level throughput limit. Best-effort: state is local to
// this process, so a deployment running multiple API instances gets a
// looser effective limit than Config nominally describes unless paired
// with RedisLimiter.
type InProcessLimiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter    *rate.Limiter
	lastSeenAt time.Time
}

// NewInProcessLimiter builds an InProcessLimiter and starts its background
// eviction loop, which it stops when ctx is cancelled.
func NewInProcessLimiter(ctx context.Context, cfg Config) *InProcessLimiter {
	l := &InProcessLimiter{cfg: cfg, buckets: make(map[string]*bucket)}
	go l.evictLoop(ctx)
	return l
}

func (l *InProcessLimiter) Allow(ctx context.Context, key string) (Result, error) {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		// rate.Limiter uses a per-second rate; burst equals MaxAttempts so a
		// key that has been idle for the full window can use its whole
		// allowance in one instant, same as at window start.
		perSecond := float64(l.cfg.MaxAttempts) / l.cfg.Window.Seconds()
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(perSecond), l.cfg.MaxAttempts)}
		l.buckets[key] = b
	}
	b.lastSeenAt = time.Now()
	limiter := b.limiter
	l.mu.Unlock()

	if limiter.Allow() {
		return Result{Allowed: true}, nil
	}
	reservation := limiter.Reserve()
	retryAfter := reservation.Delay()
	reservation.Cancel()
	return Result{Allowed: false, RetryAfter: retryAfter}, nil
}

// evictLoop drops buckets that have been idle for two windows, bounding
// memory growth from keys (IPs, usernames) that stop appearing.
func (l *InProcessLimiter) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evictStale()
		}
	}
}

func (l *InProcessLimiter) evictStale() {
	cutoff := time.Now().Add(-2 * l.cfg.Window)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.lastSeenAt.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
