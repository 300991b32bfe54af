// Package dlq routes failed envelopes to the failure endpoints and keeps a
// durable record of every failure occurrence.
package dlq

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/telhawk-systems/eventvault/common/logging"
	"github.com/telhawk-systems/eventvault/pipeline/internal/extractor"
	"github.com/telhawk-systems/eventvault/pipeline/internal/identity"
	"github.com/telhawk-systems/eventvault/pipeline/internal/metrics"
	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
	"github.com/telhawk-systems/eventvault/pipeline/internal/storage"
)

var kinds = []models.DLQKind{models.DLQKindDomain, models.DLQKindSystem}

// Store writes DLQ records. Indexes are created once per kind per process,
// either by Bootstrap or lazily on the first write.
type Store struct {
	store  storage.DLQStore
	logger *slog.Logger
	now    func() time.Time
	once   map[models.DLQKind]*sync.Once
}

// NewStore constructs a Store.
func NewStore(store storage.DLQStore, logger *slog.Logger) *Store {
	s := &Store{
		store:  store,
		logger: logging.OrDefault(logger),
		now:    func() time.Time { return time.Now().UTC() },
		once:   make(map[models.DLQKind]*sync.Once, len(kinds)),
	}
	for _, k := range kinds {
		s.once[k] = new(sync.Once)
	}
	return s
}

// Bootstrap creates the indexes for every kind. Failures are logged and
// returned but leave the store usable.
func (s *Store) Bootstrap(ctx context.Context) error {
	var errs []error
	for _, k := range kinds {
		if err := s.ensureIndexes(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) ensureIndexes(ctx context.Context, kind models.DLQKind) error {
	once, ok := s.once[kind]
	if !ok {
		return storage.ErrUnknownKind
	}
	var err error
	once.Do(func() {
		err = s.store.EnsureIndexes(ctx, kind)
		if err != nil {
			metrics.DLQIndexErrors.WithLabelValues(string(kind)).Inc()
			s.logger.Warn("dlq index bootstrap failed, continuing without indexes",
				logging.DLQKind(string(kind)), logging.Error(err))
			return
		}
		s.logger.Info("dlq indexes ready", logging.DLQKind(string(kind)))
	})
	return err
}

// StoreFailure persists payload under a fresh DLQ id and returns the id.
// Blank payloads are ignored and yield "". Write failures are logged, not
// returned.
func (s *Store) StoreFailure(ctx context.Context, kind models.DLQKind, payload string) string {
	if strings.TrimSpace(payload) == "" {
		return ""
	}
	log := logging.FromContext(ctx, s.logger).With(logging.DLQKind(string(kind)))

	_ = s.ensureIndexes(ctx, kind)

	rec := &models.DLQRecord{
		DLQID:         identity.NewDLQID(),
		Kind:          kind,
		PayloadSHA256: extractor.HashString(payload),
		Payload:       payload,
		CreatedAt:     s.now(),
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		log.Error("failed to persist dlq record", logging.Error(err))
		return ""
	}

	metrics.DLQWritesTotal.WithLabelValues(string(kind)).Inc()
	log.Info("dlq record stored", logging.DLQID(rec.DLQID))
	return rec.DLQID
}

// FindByWindow lists records of kind created in [from, to).
func (s *Store) FindByWindow(ctx context.Context, kind models.DLQKind, from, to time.Time) ([]*models.DLQRecord, error) {
	return s.store.FindByWindow(ctx, kind, from, to)
}

// FindByID returns the record with dlqID, or storage.ErrNotFound.
func (s *Store) FindByID(ctx context.Context, kind models.DLQKind, dlqID string) (*models.DLQRecord, error) {
	return s.store.FindByID(ctx, kind, dlqID)
}
