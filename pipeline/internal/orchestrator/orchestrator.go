// Package orchestrator is the single entry point for submitting one
// envelope: validate, resolve identity, anchor, and post downstream.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/telhawk-systems/eventvault/common/logging"
	"github.com/telhawk-systems/eventvault/pipeline/internal/identity"
	"github.com/telhawk-systems/eventvault/pipeline/internal/metrics"
	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
	"github.com/telhawk-systems/eventvault/pipeline/internal/transport"
	"github.com/telhawk-systems/eventvault/pipeline/internal/validator"
)

// IdentityResolver assigns the ingestion identity for a validated envelope.
type IdentityResolver interface {
	Resolve(ctx context.Context, env *models.EventEnvelope) string
}

// ResolverFunc adapts a function to IdentityResolver.
type ResolverFunc func(ctx context.Context, env *models.EventEnvelope) string

func (f ResolverFunc) Resolve(ctx context.Context, env *models.EventEnvelope) string {
	return f(ctx, env)
}

// Stats are cumulative counters since process start.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Succeeded uint64 `json:"succeeded"`
	Rejected  uint64 `json:"rejected"`
	Failed    uint64 `json:"failed"`
}

// Orchestrator holds its collaborators as immutable fields set at
// construction time.
type Orchestrator struct {
	poster   transport.Poster
	resolver IdentityResolver
	endpoint string
	results  *identity.Sequence
	logger   *slog.Logger

	submitted atomic.Uint64
	succeeded atomic.Uint64
	rejected  atomic.Uint64
	failed    atomic.Uint64
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithEndpoint overrides the endpoint anchored envelopes are posted to.
func WithEndpoint(endpoint string) Option {
	return func(o *Orchestrator) { o.endpoint = endpoint }
}

// New constructs an Orchestrator. A nil poster is tolerated and reported
// as REST-transport_not_ready on every call. A nil resolver mints a fresh
// identity for every envelope.
func New(poster transport.Poster, resolver IdentityResolver, logger *slog.Logger, opts ...Option) *Orchestrator {
	if resolver == nil {
		gen := identity.NewGenerator(identity.PrefixIngestion)
		resolver = ResolverFunc(func(context.Context, *models.EventEnvelope) string { return gen.Next() })
	}
	o := &Orchestrator{
		poster:   poster,
		resolver: resolver,
		endpoint: transport.EndpointIngest,
		results:  identity.NewSequence(identity.PrefixResult),
		logger:   logging.OrDefault(logger),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Orchestrate processes one raw envelope. It never returns an error:
// every outcome is described by the result.
func (o *Orchestrator) Orchestrate(ctx context.Context, raw []byte) models.ProcessorResult {
	o.submitted.Add(1)
	resultID := o.results.Next()
	log := logging.FromContext(ctx, o.logger)

	env, why := validator.Parse(raw)
	if why != nil {
		o.rejected.Add(1)
		metrics.OrchestrationsTotal.WithLabelValues(metrics.OutcomeFailed, why.Reason).Inc()
		log.Info("envelope rejected", logging.Reason(why.Reason))
		return models.ProcessorFailure(resultID, "", why)
	}

	ingestionID := o.resolver.Resolve(ctx, env)
	anchored := env.WithIngestionID(ingestionID)
	log = log.With(logging.IngestionID(ingestionID), logging.Topic(anchored.Kafka.Topic))

	if why := o.post(ctx, anchored); why != nil {
		o.failed.Add(1)
		metrics.OrchestrationsTotal.WithLabelValues(metrics.OutcomeFailed, why.Reason).Inc()
		log.Warn("envelope not delivered", logging.Reason(why.Reason), slog.String("details", why.Details))
		return models.ProcessorFailure(resultID, ingestionID, why)
	}

	o.succeeded.Add(1)
	metrics.OrchestrationsTotal.WithLabelValues(metrics.OutcomeOK, "").Inc()
	log.Debug("envelope delivered")
	return models.ProcessorSuccess(resultID, anchored)
}

// Submit orchestrates an already decoded envelope. The envelope is not
// modified.
func (o *Orchestrator) Submit(ctx context.Context, env *models.EventEnvelope) models.ProcessorResult {
	if env == nil {
		return o.Orchestrate(ctx, nil)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		o.submitted.Add(1)
		o.rejected.Add(1)
		return models.ProcessorFailure(o.results.Next(), "", models.NewWhy(models.ReasonMissingEnvelope, err.Error()))
	}
	return o.Orchestrate(ctx, raw)
}

func (o *Orchestrator) post(ctx context.Context, anchored *models.EventEnvelope) *models.Why {
	if o.poster == nil {
		return models.NewWhy(models.ReasonRESTTransportNotReady)
	}

	body, err := json.Marshal(anchored)
	if err != nil {
		return models.NewWhy(models.ReasonRESTCallFailed, err.Error())
	}

	start := time.Now()
	status, err := o.poster.Post(ctx, o.endpoint, body)
	metrics.TransportDuration.WithLabelValues(o.endpoint).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, transport.ErrNotReady):
		return models.NewWhy(models.ReasonRESTTransportNotReady)
	case err != nil:
		return models.NewWhy(models.ReasonRESTCallFailed, err.Error())
	case !transport.IsSuccess(status):
		return models.NewWhy(models.ReasonRESTNon2xx, strconv.Itoa(status))
	}
	return nil
}

// Ready reports whether a transport is configured.
func (o *Orchestrator) Ready() bool {
	return o != nil && o.poster != nil
}

// Stats returns a snapshot of the counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Submitted: o.submitted.Load(),
		Succeeded: o.succeeded.Load(),
		Rejected:  o.rejected.Load(),
		Failed:    o.failed.Load(),
	}
}
