package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
	"github.com/telhawk-systems/eventvault/pipeline/internal/storage"
)

// Selector finds replay candidates.
type Selector interface {
	SelectByTimeWindow(ctx context.Context, from, to time.Time) ([]models.ReplayEvent, error)
	SelectByKeyOrID(ctx context.Context, key string) ([]models.ReplayEvent, error)
	SelectByDLQID(ctx context.Context, kind models.DLQKind, dlqID string) ([]models.ReplayEvent, error)
}

// StoreSelector selects from the ingestion and DLQ stores. Either store may
// be nil, which makes the modes that need it fail.
type StoreSelector struct {
	ingest storage.IngestionStore
	dlq    storage.DLQStore
}

// NewStoreSelector constructs a StoreSelector.
func NewStoreSelector(ingest storage.IngestionStore, dlq storage.DLQStore) *StoreSelector {
	return &StoreSelector{ingest: ingest, dlq: dlq}
}

var errNoStore = errors.New("store not configured")

func (s *StoreSelector) SelectByTimeWindow(ctx context.Context, from, to time.Time) ([]models.ReplayEvent, error) {
	if s.ingest == nil {
		return nil, errNoStore
	}
	recs, err := s.ingest.FindByWindow(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("select by time window: %w", err)
	}
	return fromIngestion(recs), nil
}

func (s *StoreSelector) SelectByKeyOrID(ctx context.Context, key string) ([]models.ReplayEvent, error) {
	if s.ingest == nil {
		return nil, errNoStore
	}
	recs, err := s.ingest.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("select by key: %w", err)
	}
	return fromIngestion(recs), nil
}

func (s *StoreSelector) SelectByDLQID(ctx context.Context, kind models.DLQKind, dlqID string) ([]models.ReplayEvent, error) {
	if s.dlq == nil {
		return nil, errNoStore
	}
	rec, err := s.dlq.FindByID(ctx, kind, dlqID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select by dlq id: %w", err)
	}
	return []models.ReplayEvent{dlqEvent(rec)}, nil
}

func fromIngestion(recs []*models.IngestionRecord) []models.ReplayEvent {
	out := make([]models.ReplayEvent, 0, len(recs))
	for _, rec := range recs {
		ts := rec.CreatedAt
		out = append(out, models.ReplayEvent{ID: rec.IngestionID, Payload: rec.Payload, Timestamp: &ts})
	}
	return out
}

func dlqEvent(rec *models.DLQRecord) models.ReplayEvent {
	ts := rec.CreatedAt
	return models.ReplayEvent{ID: rec.DLQID, Payload: rec.Payload, Timestamp: &ts}
}
