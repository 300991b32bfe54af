// Package consumer persists anchored envelopes delivered by the transport
// and dead-letters the ones that cannot be stored.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/telhawk-systems/eventvault/common/logging"
	"github.com/telhawk-systems/eventvault/pipeline/internal/extractor"
	"github.com/telhawk-systems/eventvault/pipeline/internal/ingestion"
	"github.com/telhawk-systems/eventvault/pipeline/internal/metrics"
	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
)

// IngestionWriter stores ingestion documents.
type IngestionWriter interface {
	StoreIngestion(ctx context.Context, raw []byte) models.IngestionReceipt
}

// FailureRouter dead-letters envelopes.
type FailureRouter interface {
	RouteDomainFailure(ctx context.Context, env *models.EventEnvelope) string
	RouteSystemFailure(ctx context.Context, env *models.EventEnvelope) string
	RouteRaw(ctx context.Context, kind models.DLQKind, body []byte) string
}

// Handler turns one delivered envelope into a stored ingestion record.
// StatsRecorder counts consumed envelopes per source topic.
type StatsRecorder interface {
	Record(topic string, stored bool)
}

type Handler struct {
	extractor extractor.Extractor
	writer    IngestionWriter
	router    FailureRouter
	stats     StatsRecorder
	logger    *slog.Logger
}

// Option customises a Handler.
type Option func(*Handler)

// WithStats records every consumed envelope in r.
func WithStats(r StatsRecorder) Option {
	return func(h *Handler) { h.stats = r }
}

// NewHandler constructs a Handler. router may be nil, in which case
// failures are only logged.
func NewHandler(ex extractor.Extractor, writer IngestionWriter, router FailureRouter, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{extractor: ex, writer: writer, router: router, logger: logging.OrDefault(logger)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle stores body, an anchored envelope. Failures are dead-lettered:
// content problems as domain failures, everything else as system failures.
func (h *Handler) Handle(ctx context.Context, body []byte) models.IngestionReceipt {
	receipt, topic := h.handle(ctx, body)
	outcome := metrics.OutcomeOK
	if !receipt.OK {
		outcome = metrics.OutcomeFailed
	}
	metrics.ConsumedTotal.WithLabelValues(outcome).Inc()
	if h.stats != nil {
		h.stats.Record(topic, receipt.OK)
	}
	return receipt
}

func (h *Handler) handle(ctx context.Context, body []byte) (models.IngestionReceipt, string) {
	log := logging.FromContext(ctx, h.logger)

	env, err := models.ParseCompleteEnvelope(body)
	if err != nil {
		why := models.NewWhy(models.ReasonIngPayloadNotJSON, err.Error())
		log.Warn("undecodable envelope delivered", logging.Reason(why.Reason))
		if h.router != nil {
			h.router.RouteRaw(ctx, models.DLQKindDomain, body)
		}
		return models.FailedReceipt("", why), ""
	}
	topic := env.Kafka.Topic
	log = log.With(logging.IngestionID(env.IngestionID), logging.Topic(topic))

	payload, err := env.DecodedPayload()
	if err != nil {
		return h.fail(ctx, log, env, models.NewWhy(models.ReasonPayloadValueBase64, err.Error())), topic
	}

	view, err := h.extractor.Extract(ctx, payload)
	switch {
	case errors.Is(err, extractor.ErrEmptyPayload):
		return h.fail(ctx, log, env, models.NewWhy(models.ReasonIngPayloadBlank)), topic
	case err != nil:
		return h.fail(ctx, log, env, models.NewWhy(models.ReasonIngExtractFailed, err.Error())), topic
	}

	doc, err := ingestion.NewDocument(env, view).Marshal()
	if err != nil {
		return h.fail(ctx, log, env, models.NewWhy(models.ReasonIngExtractFailed, err.Error())), topic
	}

	receipt := h.writer.StoreIngestion(ctx, doc)
	if !receipt.OK {
		h.route(ctx, log, env, receipt.Why)
		return receipt, topic
	}
	log.Debug("envelope stored", logging.SnapshotHash(receipt.SnapshotHash))
	return receipt, topic
}

func (h *Handler) fail(ctx context.Context, log *slog.Logger, env *models.EventEnvelope, why *models.Why) models.IngestionReceipt {
	h.route(ctx, log, env, why)
	return models.FailedReceipt("", why)
}

func (h *Handler) route(ctx context.Context, log *slog.Logger, env *models.EventEnvelope, why *models.Why) {
	reason := ""
	if why != nil {
		reason = why.Reason
	}
	if models.IsIngestionContentFailure(reason) {
		log.Warn("envelope rejected, routing to domain dlq", logging.Reason(reason))
		if h.router != nil {
			h.router.RouteDomainFailure(ctx, env)
		}
		return
	}
	log.Error("envelope not stored, routing to system dlq", logging.Reason(reason))
	if h.router != nil {
		h.router.RouteSystemFailure(ctx, env)
	}
}

// Local adapts the handler to the in-process transport. Delivery is always
// accepted: failures are already dead-lettered.
func (h *Handler) Local() func(ctx context.Context, body []byte) (int, error) {
	return func(ctx context.Context, body []byte) (int, error) {
		h.Handle(ctx, body)
		return http.StatusAccepted, nil
	}
}
