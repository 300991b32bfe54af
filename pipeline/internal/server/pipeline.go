package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/telhawk-systems/eventvault/common/logging"
	"github.com/telhawk-systems/eventvault/pipeline/internal/consumer"
	"github.com/telhawk-systems/eventvault/pipeline/internal/dlq"
	"github.com/telhawk-systems/eventvault/pipeline/internal/extractor"
	"github.com/telhawk-systems/eventvault/pipeline/internal/features"
	"github.com/telhawk-systems/eventvault/pipeline/internal/handlers"
	"github.com/telhawk-systems/eventvault/pipeline/internal/ingestion"
	"github.com/telhawk-systems/eventvault/pipeline/internal/orchestrator"
	"github.com/telhawk-systems/eventvault/pipeline/internal/ratelimit"
	"github.com/telhawk-systems/eventvault/pipeline/internal/replay"
	"github.com/telhawk-systems/eventvault/pipeline/internal/storage"
	"github.com/telhawk-systems/eventvault/pipeline/internal/transport"
)

// Deps are the infrastructure pieces a Pipeline is assembled from.
type Deps struct {
	IngestionStore storage.IngestionStore
	DLQStore       storage.DLQStore
	// Poster carries anchored envelopes and failure notifications. When nil
	// the pipeline delivers to its own consumer in-process.
	Poster       transport.Poster
	Flags        features.Flags
	Limiter      ratelimit.RateLimiter
	Stats        consumer.StatsRecorder
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// Pipeline is the fully wired set of components.
type Pipeline struct {
	Ingestion    *ingestion.Service
	DLQ          *dlq.Store
	DLQRouter    *dlq.Router
	Consumer     *consumer.Handler
	Orchestrator *orchestrator.Orchestrator
	Replay       *replay.Engine
	Handler      *handlers.Handler
	// Local is set when deliveries loop back in-process.
	Local *transport.LocalPoster
}

// NewPipeline wires the components around the given stores and poster.
func NewPipeline(d Deps) *Pipeline {
	logger := logging.OrDefault(d.Logger)
	ex := extractor.New()

	p := &Pipeline{}
	poster := d.Poster
	if poster == nil {
		p.Local = transport.NewLocalPoster()
		poster = p.Local
	}

	p.Ingestion = ingestion.NewService(d.IngestionStore, logger.With(logging.Service("ingestion")))
	p.DLQ = dlq.NewStore(d.DLQStore, logger.With(logging.Service("dlq")))
	p.DLQRouter = dlq.NewRouter(poster, p.DLQ, logger.With(logging.Service("dlq")))
	var consumerOpts []consumer.Option
	if d.Stats != nil {
		consumerOpts = append(consumerOpts, consumer.WithStats(d.Stats))
	}
	p.Consumer = consumer.NewHandler(ex, p.Ingestion, p.DLQRouter, logger.With(logging.Service("consumer")), consumerOpts...)

	resolver := ingestion.NewResolver(p.Ingestion, ex, logger.With(logging.Service("resolver")))
	p.Orchestrator = orchestrator.New(poster, resolver, logger.With(logging.Service("orchestrator")))
	p.Replay = replay.NewEngine(replay.NewStoreSelector(d.IngestionStore, d.DLQStore), p.Orchestrator, d.Flags,
		logger.With(logging.Service("replay")))

	if p.Local != nil {
		p.Local.Handle(transport.EndpointIngest, p.Consumer.Local())
		p.Local.Handle(transport.EndpointDLQDomain, acknowledge)
		p.Local.Handle(transport.EndpointDLQSystem, acknowledge)
	}

	opts := []handlers.Option{}
	if d.Limiter != nil {
		opts = append(opts, handlers.WithRateLimiter(d.Limiter))
	}
	if d.MaxBodyBytes > 0 {
		opts = append(opts, handlers.WithMaxBodyBytes(d.MaxBodyBytes))
	}
	p.Handler = handlers.NewHandler(p.Orchestrator, p.Replay, p.DLQ, p.Consumer, p.Ingestion, logger, opts...)
	return p
}

// acknowledge accepts failure notifications on the loopback transport.
// The DLQ router persists the record itself.
func acknowledge(context.Context, []byte) (int, error) {
	return http.StatusAccepted, nil
}
