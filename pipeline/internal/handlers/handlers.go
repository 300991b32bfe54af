// Package handlers exposes the pipeline over HTTP: ingestion submission,
// replay, DLQ inspection, the transport-facing consumer endpoints and
// health probes.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/telhawk-systems/eventvault/common/httputil"
	"github.com/telhawk-systems/eventvault/common/logging"
	"github.com/telhawk-systems/eventvault/pipeline/internal/metrics"
	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
	"github.com/telhawk-systems/eventvault/pipeline/internal/orchestrator"
	"github.com/telhawk-systems/eventvault/pipeline/internal/ratelimit"
	"github.com/telhawk-systems/eventvault/pipeline/internal/replay"
	"github.com/telhawk-systems/eventvault/pipeline/internal/storage"
)

// Orchestrator submits raw envelopes.
type Orchestrator interface {
	Orchestrate(ctx context.Context, raw []byte) models.ProcessorResult
	Stats() orchestrator.Stats
}

// Replayer runs a replay in the given mode.
type Replayer interface {
	Replay(ctx context.Context, mode replay.Mode, req models.ReplayRequest) models.ReplayResult
}

// DLQReader reads dead-lettered records.
type DLQReader interface {
	FindByWindow(ctx context.Context, kind models.DLQKind, from, to time.Time) ([]*models.DLQRecord, error)
	FindByID(ctx context.Context, kind models.DLQKind, dlqID string) (*models.DLQRecord, error)
}

// EventConsumer persists anchored envelopes delivered by the transport.
type EventConsumer interface {
	Handle(ctx context.Context, body []byte) models.IngestionReceipt
}

// Pinger reports backing store readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the pipeline HTTP API.
type Handler struct {
	orchestrator Orchestrator
	replayer     Replayer
	dlq          DLQReader
	events       EventConsumer
	store        Pinger
	limiter      ratelimit.RateLimiter
	maxBodyBytes int64
	logger       *slog.Logger
	now          func() time.Time
}

// Option customises a Handler.
type Option func(*Handler)

// WithRateLimiter enables per-client-IP limiting on POST /ingestion.
func WithRateLimiter(l ratelimit.RateLimiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// WithMaxBodyBytes bounds request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) { h.maxBodyBytes = n }
}

// NewHandler builds a Handler. Any collaborator may be nil; the routes
// depending on it then answer 503.
func NewHandler(orch Orchestrator, replayer Replayer, dlq DLQReader, events EventConsumer, store Pinger, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		orchestrator: orch,
		replayer:     replayer,
		dlq:          dlq,
		events:       events,
		store:        store,
		limiter:      &ratelimit.NoOpRateLimiter{},
		maxBodyBytes: httputil.DefaultMaxBodyBytes,
		logger:       logging.OrDefault(logger).With(logging.Service("http")),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type ingestionRequest struct {
	Payload json.RawMessage `json:"payload"`
}

type rejection struct {
	OK  bool        `json:"ok"`
	Why *models.Why `json:"why"`
}

func reject(w http.ResponseWriter, status int, reason string, details ...string) {
	httputil.WriteJSON(w, status, rejection{Why: models.NewWhy(reason, details...)})
}

// SubmitIngestion handles POST /ingestion. The result is always 200 once
// the outer request is well formed; ok=false results carry the reason.
func (h *Handler) SubmitIngestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if h.orchestrator == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "orchestrator unavailable")
		return
	}

	log := logging.FromContext(r.Context(), h.logger)
	if !h.allow(r, log) {
		reject(w, http.StatusTooManyRequests, models.ReasonRESTRateLimited)
		return
	}

	var req ingestionRequest
	if err := httputil.DecodeJSON(r, &req, h.maxBodyBytes); err != nil {
		reject(w, http.StatusBadRequest, models.ReasonRESTRequestMalformed, err.Error())
		return
	}
	payload, err := envelopeBytes(req.Payload)
	if err != nil {
		reject(w, http.StatusBadRequest, models.ReasonRESTRequestMalformed, err.Error())
		return
	}
	if payload == nil {
		reject(w, http.StatusBadRequest, models.ReasonRESTPayloadBlank)
		return
	}

	result := h.orchestrator.Orchestrate(r.Context(), payload)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// envelopeBytes unwraps the payload field. The envelope is normally sent as
// a JSON string; an inline object is accepted too. A nil result means the
// payload was absent or blank.
func envelopeBytes(raw json.RawMessage) ([]byte, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if trimmed[0] != '"' {
		return []byte(trimmed), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return []byte(s), nil
}

func (h *Handler) allow(r *http.Request, log *slog.Logger) bool {
	ip := httputil.GetClientIP(r)
	allowed, err := h.limiter.Allow(r.Context(), ip)
	if err != nil {
		log.Warn("rate limiter unavailable, allowing request", logging.Error(err))
		return true
	}
	if !allowed {
		metrics.RateLimitHits.Inc()
		log.Warn("ingestion rate limited", slog.String("client_ip", ip))
	}
	return allowed
}

// Replay returns the handler for POST /replay/<mode>.
func (h *Handler) Replay(mode replay.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w, http.MethodPost)
			return
		}
		if h.replayer == nil {
			httputil.WriteJSON(w, http.StatusInternalServerError, models.ReplayRejected(models.ReasonReplayOrchestratorNil))
			return
		}

		var req models.ReplayRequest
		if err := httputil.DecodeJSON(r, &req, h.maxBodyBytes); err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, models.ReplayRejected(models.ReplayBadRequest("body")))
			return
		}

		result := h.replayer.Replay(r.Context(), mode, req)
		httputil.WriteJSON(w, ReplayStatus(result), result)
	}
}

// ReplayStatus maps a replay result onto its HTTP status code.
func ReplayStatus(result models.ReplayResult) int {
	switch {
	case result.OK:
		return http.StatusOK
	case models.IsBadRequest(result.Reason):
		return http.StatusBadRequest
	case result.Reason == models.ReasonReplayDisabled:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// ListDLQ handles GET /dlq/{kind}?fromTime&toTime. An absent fromTime
// means the beginning of time and an absent toTime means now.
func (h *Handler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.dlqKind(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	from := time.Unix(0, 0).UTC()
	to := h.now().UTC()
	if v := q.Get("fromTime"); v != "" {
		t, ok := replay.ParseTime(v)
		if !ok {
			httputil.WriteError(w, http.StatusBadRequest, "invalid fromTime")
			return
		}
		from = t
	}
	if v := q.Get("toTime"); v != "" {
		t, ok := replay.ParseTime(v)
		if !ok {
			httputil.WriteError(w, http.StatusBadRequest, "invalid toTime")
			return
		}
		to = t
	}

	records, err := h.dlq.FindByWindow(r.Context(), kind, from, to)
	if err != nil {
		logging.FromContext(r.Context(), h.logger).Error("dlq window query failed",
			logging.DLQKind(string(kind)), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "dlq query failed")
		return
	}
	if records == nil {
		records = []*models.DLQRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}

// GetDLQ handles GET /dlq/{kind}/by-id?dlqId. Unknown ids answer {}.
func (h *Handler) GetDLQ(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.dlqKind(w, r)
	if !ok {
		return
	}

	dlqID := strings.TrimSpace(r.URL.Query().Get("dlqId"))
	if dlqID == "" {
		httputil.WriteJSON(w, http.StatusOK, struct{}{})
		return
	}

	rec, err := h.dlq.FindByID(r.Context(), kind, dlqID)
	switch {
	case errors.Is(err, storage.ErrNotFound), err == nil && rec == nil:
		httputil.WriteJSON(w, http.StatusOK, struct{}{})
	case err != nil:
		logging.FromContext(r.Context(), h.logger).Error("dlq lookup failed",
			logging.DLQKind(string(kind)), logging.DLQID(dlqID), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "dlq query failed")
	default:
		httputil.WriteJSON(w, http.StatusOK, rec)
	}
}

func (h *Handler) dlqKind(w http.ResponseWriter, r *http.Request) (models.DLQKind, bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return "", false
	}
	kind, err := models.ParseDLQKind(r.PathValue("kind"))
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	if h.dlq == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "dlq store unavailable")
		return "", false
	}
	return kind, true
}

// ConsumeEvent handles POST /ingest/events, the delivery endpoint the
// HTTP transport posts anchored envelopes to. Delivery is acknowledged
// with 202 once the envelope is stored or dead-lettered.
func (h *Handler) ConsumeEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if h.events == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "consumer unavailable")
		return
	}

	body, err := h.readBody(w, r)
	if err != nil {
		httputil.WriteError(w, readErrorStatus(err), err.Error())
		return
	}
	receipt := h.events.Handle(r.Context(), body)
	httputil.WriteJSON(w, http.StatusAccepted, receipt)
}

// AcceptFailure handles POST /dlq/{kind}, the failure endpoint the DLQ
// router notifies before persisting. Persistence stays with the router, so
// the sink only acknowledges.
func (h *Handler) AcceptFailure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	kind, err := models.ParseDLQKind(r.PathValue("kind"))
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	body, err := h.readBody(w, r)
	if err != nil {
		httputil.WriteError(w, readErrorStatus(err), err.Error())
		return
	}
	logging.FromContext(r.Context(), h.logger).Info("failure notification received",
		logging.DLQKind(string(kind)), slog.Int("bytes", len(body)))
	httputil.WriteJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

// readBody reads the whole body, failing with *http.MaxBytesError when it
// exceeds maxBodyBytes. Oversized bodies are never truncated.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, fmt.Errorf("empty body")
	}
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func readErrorStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "healthy"}
	if h.orchestrator != nil {
		resp["stats"] = h.orchestrator.Stats()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Ready handles GET /readyz.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
