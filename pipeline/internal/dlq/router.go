package dlq

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/telhawk-systems/eventvault/common/logging"
	"github.com/telhawk-systems/eventvault/pipeline/internal/metrics"
	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
	"github.com/telhawk-systems/eventvault/pipeline/internal/transport"
)

var endpoints = map[models.DLQKind]string{
	models.DLQKindDomain: transport.EndpointDLQDomain,
	models.DLQKindSystem: transport.EndpointDLQSystem,
}

// Router sends failures to the failure endpoint for their kind and always
// persists them, whatever the post outcome.
type Router struct {
	poster transport.Poster
	store  *Store
	logger *slog.Logger
}

// NewRouter constructs a Router. poster may be nil, in which case only the
// store write happens.
func NewRouter(poster transport.Poster, store *Store, logger *slog.Logger) *Router {
	return &Router{poster: poster, store: store, logger: logging.OrDefault(logger)}
}

// RouteDomainFailure routes a business-rule failure. A nil envelope is a
// no-op.
func (r *Router) RouteDomainFailure(ctx context.Context, env *models.EventEnvelope) string {
	return r.routeEnvelope(ctx, models.DLQKindDomain, env)
}

// RouteSystemFailure routes an infrastructure failure. A nil envelope is a
// no-op.
func (r *Router) RouteSystemFailure(ctx context.Context, env *models.EventEnvelope) string {
	return r.routeEnvelope(ctx, models.DLQKindSystem, env)
}

// RouteRaw routes a body that could not be decoded as an envelope.
func (r *Router) RouteRaw(ctx context.Context, kind models.DLQKind, body []byte) string {
	return r.route(ctx, kind, body)
}

func (r *Router) routeEnvelope(ctx context.Context, kind models.DLQKind, env *models.EventEnvelope) string {
	if env == nil {
		return ""
	}
	body, err := json.Marshal(env)
	if err != nil {
		logging.FromContext(ctx, r.logger).Error("failed to encode dlq envelope",
			logging.DLQKind(string(kind)), logging.Error(err))
		return ""
	}
	return r.route(ctx, kind, body)
}

func (r *Router) route(ctx context.Context, kind models.DLQKind, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	log := logging.FromContext(ctx, r.logger).With(logging.DLQKind(string(kind)))
	endpoint := endpoints[kind]

	if r.poster != nil {
		status, err := r.poster.Post(ctx, endpoint, body)
		switch {
		case err != nil:
			metrics.DLQPostFailures.WithLabelValues(string(kind)).Inc()
			log.Warn("dlq post failed", logging.Endpoint(endpoint), logging.Error(err))
		case !transport.IsSuccess(status):
			metrics.DLQPostFailures.WithLabelValues(string(kind)).Inc()
			log.Warn("dlq post rejected", logging.Endpoint(endpoint), logging.Status(status))
		}
	}

	return r.store.StoreFailure(ctx, kind, string(body))
}
