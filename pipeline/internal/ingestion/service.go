// Package ingestion implements the idempotent ingestion store: one record
// per content fingerprint, a stable ingestion identity per fingerprint,
// and createdAt touches on every resend.
package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/telhawk-systems/eventvault/common/logging"
	"github.com/telhawk-systems/eventvault/pipeline/internal/extractor"
	"github.com/telhawk-systems/eventvault/pipeline/internal/identity"
	"github.com/telhawk-systems/eventvault/pipeline/internal/metrics"
	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
	"github.com/telhawk-systems/eventvault/pipeline/internal/storage"
)

// Service stores ingestion documents idempotently.
type Service struct {
	store  storage.IngestionStore
	ids    *identity.Generator
	logger *slog.Logger
	now    func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithGenerator overrides the ingestion ID generator.
func WithGenerator(g *identity.Generator) Option {
	return func(s *Service) { s.ids = g }
}

// NewService constructs a Service.
func NewService(store storage.IngestionStore, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		ids:    identity.NewGenerator(identity.PrefixIngestion),
		logger: logging.OrDefault(logger),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type storedDocument struct {
	IngestionID string            `json:"ingestionId"`
	GraphView   *models.GraphView `json:"graphView"`
}

// StoreIngestion persists raw, a Document produced downstream of the
// orchestrator. Expected failures come back as a failed receipt.
func (s *Service) StoreIngestion(ctx context.Context, raw []byte) models.IngestionReceipt {
	start := time.Now()
	defer func() { metrics.StorageDuration.Observe(time.Since(start).Seconds()) }()

	receipt := s.storeIngestion(ctx, raw)
	if !receipt.OK {
		action := metrics.ActionRejected
		if receipt.Why != nil && receipt.Why.Reason == models.ReasonIngStoreFailed {
			action = metrics.ActionFailed
		}
		metrics.IngestionStoreTotal.WithLabelValues(action).Inc()
	}
	return receipt
}

func (s *Service) storeIngestion(ctx context.Context, raw []byte) models.IngestionReceipt {
	storeType := s.store.Type()
	log := logging.FromContext(ctx, s.logger)

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return models.FailedReceipt(storeType, models.NewWhy(models.ReasonIngPayloadBlank))
	}

	var doc storedDocument
	if trimmed[0] != '{' || json.Unmarshal(trimmed, &doc) != nil {
		return models.FailedReceipt(storeType, models.NewWhy(models.ReasonIngPayloadNotJSON))
	}
	if strings.TrimSpace(doc.IngestionID) == "" {
		return models.FailedReceipt(storeType, models.NewWhy(models.ReasonIngIngestionIDMissing))
	}
	if doc.GraphView == nil {
		return models.FailedReceipt(storeType, models.NewWhy(models.ReasonIngGraphViewNull))
	}
	view := *doc.GraphView
	if strings.TrimSpace(view.SnapshotHash) == "" {
		return models.FailedReceipt(storeType, models.NewWhy(models.ReasonIngSnapshotHashBlank))
	}

	payload := string(trimmed)
	payloadHash := extractor.HashString(payload)
	now := s.now()

	existing, err := s.store.FindBySnapshotHash(ctx, view.SnapshotHash)
	switch {
	case err == nil:
		receipt := s.touch(ctx, existing, payloadHash, view, now)
		if receipt.OK {
			metrics.IngestionStoreTotal.WithLabelValues(metrics.ActionTouch).Inc()
		}
		return receipt
	case !errors.Is(err, storage.ErrNotFound):
		log.Error("failed to look up ingestion record", logging.SnapshotHash(view.SnapshotHash), logging.Error(err))
		return models.FailedReceipt(storeType, models.NewWhy(models.ReasonIngStoreFailed, err.Error()))
	}

	nodes, edges := view.NodeCount, view.EdgeCount
	rec := &models.IngestionRecord{
		IngestionID:  doc.IngestionID,
		SnapshotHash: view.SnapshotHash,
		PayloadHash:  payloadHash,
		Payload:      payload,
		CreatedAt:    now,
		NodeCount:    &nodes,
		EdgeCount:    &edges,
	}

	err = s.store.Insert(ctx, rec)
	switch {
	case err == nil:
		metrics.IngestionStoreTotal.WithLabelValues(metrics.ActionInsert).Inc()
		log.Debug("stored ingestion record", logging.IngestionID(rec.IngestionID), logging.SnapshotHash(rec.SnapshotHash))
		return s.receipt(rec.IngestionID, payloadHash, view, now)
	case errors.Is(err, storage.ErrDuplicateKey):
		// Lost the race for this fingerprint: converge on the winner.
		winner, findErr := s.store.FindBySnapshotHash(ctx, view.SnapshotHash)
		if findErr != nil {
			log.Error("failed to re-read ingestion record after duplicate key",
				logging.SnapshotHash(view.SnapshotHash), logging.Error(findErr))
			return models.FailedReceipt(storeType, models.NewWhy(models.ReasonIngStoreFailed, findErr.Error()))
		}
		receipt := s.touch(ctx, winner, payloadHash, view, now)
		if receipt.OK {
			metrics.IngestionStoreTotal.WithLabelValues(metrics.ActionRecovered).Inc()
			log.Info("recovered from concurrent insert",
				logging.IngestionID(winner.IngestionID), logging.SnapshotHash(view.SnapshotHash))
		}
		return receipt
	default:
		log.Error("failed to insert ingestion record", logging.SnapshotHash(view.SnapshotHash), logging.Error(err))
		return models.FailedReceipt(storeType, models.NewWhy(models.ReasonIngStoreFailed, err.Error()))
	}
}

// touch moves createdAt of an existing record forward and reports the
// existing identity.
func (s *Service) touch(ctx context.Context, existing *models.IngestionRecord, payloadHash string, view models.GraphView, now time.Time) models.IngestionReceipt {
	at := now
	if at.Before(existing.CreatedAt) {
		at = existing.CreatedAt
	}
	if err := s.store.Touch(ctx, existing.SnapshotHash, at); err != nil {
		logging.FromContext(ctx, s.logger).Error("failed to touch ingestion record",
			logging.SnapshotHash(existing.SnapshotHash), logging.Error(err))
		return models.FailedReceipt(s.store.Type(), models.NewWhy(models.ReasonIngStoreFailed, err.Error()))
	}
	return s.receipt(existing.IngestionID, payloadHash, view, at)
}

func (s *Service) receipt(ingestionID, payloadHash string, view models.GraphView, at time.Time) models.IngestionReceipt {
	receipt, err := models.NewSuccessReceipt(ingestionID, payloadHash, view, s.store.Type(), at)
	if err != nil {
		reason := models.ReasonIngStoreFailed
		if strings.TrimSpace(payloadHash) == "" {
			reason = models.ReasonIngPayloadHashBlank
		}
		return models.FailedReceipt(s.store.Type(), models.NewWhy(reason, err.Error()))
	}
	return receipt
}

// ResolveIngestionID returns the identity already bound to snapshotHash, or
// mints a fresh one when the fingerprint has not been stored yet.
func (s *Service) ResolveIngestionID(ctx context.Context, snapshotHash string) (string, error) {
	if strings.TrimSpace(snapshotHash) == "" {
		return s.ids.Next(), nil
	}
	existing, err := s.store.FindBySnapshotHash(ctx, snapshotHash)
	if err == nil {
		return existing.IngestionID, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return s.ids.Next(), nil
	}
	return "", err
}

// MintIngestionID returns a fresh identity without consulting the store.
func (s *Service) MintIngestionID() string {
	return s.ids.Next()
}

// Ping checks the underlying store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
