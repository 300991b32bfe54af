package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpRateLimiter(t *testing.T) {
	limiter := &NoOpRateLimiter{}
	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(context.Background(), "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	assert.NoError(t, limiter.Close())
}

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	_, client := newClient(t)
	limiter, err := NewRedisRateLimiter(client, 3, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i)
	}

	allowed, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, allowed, "keys are limited independently")
}

func TestRedisRateLimiter_RedisDown(t *testing.T) {
	mr, client := newClient(t)
	limiter, err := NewRedisRateLimiter(client, 1, time.Minute)
	require.NoError(t, err)
	mr.Close()

	_, err = limiter.Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestNewRedisRateLimiter_Invalid(t *testing.T) {
	_, err := NewRedisRateLimiter(nil, 1, time.Second)
	assert.Error(t, err)

	_, client := newClient(t)
	_, err = NewRedisRateLimiter(client, 0, time.Second)
	assert.Error(t, err)
}
