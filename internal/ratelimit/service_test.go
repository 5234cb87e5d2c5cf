package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewService_FallsBackToInProcessWhenNoRedisClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := NewService(ctx, nil, DefaultConfig(), "ratelimit:test:")

	_, ok := limiter.(*InProcessLimiter)
	assert.True(t, ok, "a nil redis client must select the in-process backend")
}
