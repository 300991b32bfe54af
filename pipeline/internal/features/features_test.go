package features

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/telhawk-systems/eventvault/common/logging"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()
	flags := NewStatic(map[string]bool{"Replay": true})

	assert.True(t, flags.IsEnabled(ctx, Replay))
	assert.True(t, flags.IsEnabled(ctx, "REPLAY"))
	assert.False(t, flags.IsEnabled(ctx, "unknown"))

	flags.Set(Replay, false)
	assert.False(t, flags.IsEnabled(ctx, Replay))

	var nilFlags *Static
	assert.False(t, nilFlags.IsEnabled(ctx, Replay))
}

func TestRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	flags := NewRedis(client, NewStatic(map[string]bool{Replay: true}), logging.Discard())

	assert.True(t, flags.IsEnabled(ctx, Replay), "absent key uses fallback")

	mr.Set("feature:replay", "false")
	assert.False(t, flags.IsEnabled(ctx, Replay))

	mr.Set("feature:replay", "1")
	assert.True(t, flags.IsEnabled(ctx, Replay))

	mr.Set("feature:replay", "maybe")
	assert.True(t, flags.IsEnabled(ctx, Replay), "invalid value uses fallback")

	mr.Close()
	assert.True(t, flags.IsEnabled(ctx, Replay), "redis outage uses fallback")
}

func TestRedis_NoFallback(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	assert.False(t, NewRedis(client, nil, logging.Discard()).IsEnabled(context.Background(), Replay))
}

func TestIsUnset(t *testing.T) {
	var static *Static
	var rdb *Redis

	assert.True(t, IsUnset(nil))
	assert.True(t, IsUnset(static))
	assert.True(t, IsUnset(rdb))
	assert.False(t, IsUnset(NewStatic(nil)))
	assert.False(t, IsUnset(NewRedis(nil, nil, logging.Discard())))
}
