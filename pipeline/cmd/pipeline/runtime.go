package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/eventvault/common/database"
	"github.com/telhawk-systems/eventvault/common/logging"
	natsclient "github.com/telhawk-systems/eventvault/common/messaging/nats"
	"github.com/telhawk-systems/eventvault/common/redisutil"
	"github.com/telhawk-systems/eventvault/pipeline/internal/config"
	"github.com/telhawk-systems/eventvault/pipeline/internal/consumer"
	"github.com/telhawk-systems/eventvault/pipeline/internal/features"
	"github.com/telhawk-systems/eventvault/pipeline/internal/ratelimit"
	"github.com/telhawk-systems/eventvault/pipeline/internal/server"
	"github.com/telhawk-systems/eventvault/pipeline/internal/storage"
	"github.com/telhawk-systems/eventvault/pipeline/internal/topicstats"
	"github.com/telhawk-systems/eventvault/pipeline/internal/transport"
	"github.com/telhawk-systems/eventvault/pipeline/migrations"
)

// runtime owns the process-level connections behind a Pipeline.
type runtime struct {
	pipeline *server.Pipeline
	js       *natsclient.JetStreamClient
	redis    *redis.Client
	limiter  ratelimit.RateLimiter
	stats    *topicstats.Collector
	closers  []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// buildRuntime connects the configured backends and wires the pipeline.
func buildRuntime(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*runtime, error) {
	rt := &runtime{}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	// Stores
	var ingestStore storage.IngestionStore
	var dlqStore storage.DLQStore
	switch cfg.Store.Backend {
	case config.StoreMemory:
		slog.Warn("Using in-memory stores; records are lost on restart")
		ingestStore = storage.NewMemoryIngestionStore()
		dlqStore = storage.NewMemoryDLQStore()
	default:
		if cfg.Database.RunMigrations {
			if err := migrations.Up(cfg.Database.URL); err != nil {
				return nil, fmt.Errorf("run migrations: %w", err)
			}
			slog.Info("Database migrations applied")
		}
		pool, err := database.NewPool(ctx, cfg.Database.URL, database.PoolConfig{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		ingestStore = storage.NewPostgresIngestionStore(pool)
		dlqStore = storage.NewPostgresDLQStore(pool)
	}

	// Feature flags and rate limiting
	static := features.NewStatic(cfg.FeatureFlags())
	var flags features.Flags = static
	if cfg.Redis.Enabled {
		client, err := redisutil.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			slog.Warn("Redis unavailable; using static feature flags and no rate limiting", logging.Error(err))
		} else {
			rt.redis = client
			rt.closers = append(rt.closers, func() { client.Close() })
			flags = features.NewRedis(client, static, logger.Component("features"))
		}
	}
	rt.limiter = &ratelimit.NoOpRateLimiter{}
	if cfg.RateLimit.Enabled && rt.redis != nil {
		limiter, err := ratelimit.NewRedisRateLimiter(rt.redis, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		if err != nil {
			slog.Warn("Failed to initialize rate limiter; continuing without rate limiting", logging.Error(err))
		} else {
			rt.limiter = limiter
			slog.Info("Rate limiting enabled",
				slog.Int("requests", cfg.RateLimit.Requests),
				slog.Duration("window", cfg.RateLimit.Window))
		}
	}

	// Per-topic stats share the Redis connection
	if cfg.Stats.Enabled && rt.redis != nil {
		hostname, _ := os.Hostname()
		instanceID := fmt.Sprintf("%s-%d", hostname, os.Getpid())
		rt.stats = topicstats.NewCollector(topicstats.NewClient(rt.redis, instanceID), cfg.Stats.FlushInterval, logger.Component("topicstats"))
		rt.closers = append(rt.closers, rt.stats.Stop)
		slog.Info("Topic stats enabled",
			slog.Duration("flush_interval", cfg.Stats.FlushInterval),
			slog.String("instance", instanceID))
	}

	// Transport
	var poster transport.Poster
	switch cfg.Transport.Backend {
	case config.TransportHTTP:
		poster = transport.NewHTTPPoster(cfg.Transport.BaseURL, cfg.Transport.Timeout)
	case config.TransportJetStream:
		js, err := natsclient.NewJetStreamClient(natsclient.Config{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
		})
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		rt.js = js
		rt.closers = append(rt.closers, func() { js.Close() })
		poster = transport.NewJetStreamPoster(js)
	}
	slog.Info("Transport configured", slog.String("backend", cfg.Transport.Backend))

	rt.pipeline = server.NewPipeline(server.Deps{
		IngestionStore: ingestStore,
		DLQStore:       dlqStore,
		Poster:         poster,
		Flags:          flags,
		Limiter:        rt.limiter,
		Stats:          statsRecorder(rt.stats),
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Logger:         logger.Logger,
	})

	if cfg.DLQ.BootstrapOnStart {
		if err := rt.pipeline.DLQ.Bootstrap(ctx); err != nil {
			slog.Warn("DLQ index bootstrap incomplete; continuing without indexes", logging.Error(err))
		}
	}

	ok = true
	return rt, nil
}

// statsRecorder keeps a nil collector from becoming a non-nil interface.
func statsRecorder(c *topicstats.Collector) consumer.StatsRecorder {
	if c == nil {
		return nil
	}
	return c
}
