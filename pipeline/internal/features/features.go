// Package features answers feature-flag lookups from configuration, with an
// optional Redis override so flags can be flipped without a restart.
package features

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/eventvault/common/logging"
)

// Flag names.
const (
	Replay = "replay"
)

// Flags reports whether a named feature is enabled.
type Flags interface {
	IsEnabled(ctx context.Context, name string) bool
}

// IsUnset reports whether f is nil, including a nil *Static or *Redis held
// in the interface.
func IsUnset(f Flags) bool {
	switch v := f.(type) {
	case nil:
		return true
	case *Static:
		return v == nil
	case *Redis:
		return v == nil
	}
	return false
}

// Static serves flags from a fixed map. Unknown flags are disabled.
type Static struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewStatic copies flags into a Static.
func NewStatic(flags map[string]bool) *Static {
	s := &Static{flags: make(map[string]bool, len(flags))}
	for k, v := range flags {
		s.flags[strings.ToLower(k)] = v
	}
	return s
}

func (s *Static) IsEnabled(_ context.Context, name string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[strings.ToLower(name)]
}

// Set changes a flag at runtime.
func (s *Static) Set(name string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[strings.ToLower(name)] = enabled
}

// Redis reads "feature:<name>" from Redis and falls back to another Flags
// when the key is absent or Redis is unavailable.
type Redis struct {
	client   *redis.Client
	fallback Flags
	prefix   string
	logger   *slog.Logger
}

// NewRedis constructs a Redis-backed Flags.
func NewRedis(client *redis.Client, fallback Flags, logger *slog.Logger) *Redis {
	return &Redis{
		client:   client,
		fallback: fallback,
		prefix:   "feature:",
		logger:   logging.OrDefault(logger),
	}
}

func (r *Redis) IsEnabled(ctx context.Context, name string) bool {
	key := r.prefix + strings.ToLower(name)
	val, err := r.client.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return r.fallbackEnabled(ctx, name)
	case err != nil:
		r.logger.Warn("feature flag lookup failed, using configured value",
			slog.String("flag", name), logging.Error(err))
		return r.fallbackEnabled(ctx, name)
	}

	enabled, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		r.logger.Warn("invalid feature flag value, using configured value",
			slog.String("flag", name), slog.String("value", val))
		return r.fallbackEnabled(ctx, name)
	}
	return enabled
}

func (r *Redis) fallbackEnabled(ctx context.Context, name string) bool {
	if r.fallback == nil {
		return false
	}
	return r.fallback.IsEnabled(ctx, name)
}
