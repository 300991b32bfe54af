package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
)

// MemoryIngestionStore is an in-process IngestionStore. The snapshot hash
// uniqueness constraint is enforced under the write lock.
type MemoryIngestionStore struct {
	mu      sync.RWMutex
	records map[string]*models.IngestionRecord
}

func NewMemoryIngestionStore() *MemoryIngestionStore {
	return &MemoryIngestionStore{records: make(map[string]*models.IngestionRecord)}
}

func (s *MemoryIngestionStore) FindBySnapshotHash(ctx context.Context, snapshotHash string) (*models.IngestionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[snapshotHash]
	if !ok {
		return nil, ErrNotFound
	}
	return copyIngestion(rec), nil
}

func (s *MemoryIngestionStore) Insert(ctx context.Context, rec *models.IngestionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.SnapshotHash]; exists {
		return ErrDuplicateKey
	}
	s.records[rec.SnapshotHash] = copyIngestion(rec)
	return nil
}

func (s *MemoryIngestionStore) Touch(ctx context.Context, snapshotHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[snapshotHash]
	if !ok {
		return ErrNotFound
	}
	if at.After(rec.CreatedAt) {
		rec.CreatedAt = at
	}
	return nil
}

func (s *MemoryIngestionStore) FindByWindow(ctx context.Context, from, to time.Time) ([]*models.IngestionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.IngestionRecord
	for _, rec := range s.records {
		if inWindow(rec.CreatedAt, from, to) {
			out = append(out, copyIngestion(rec))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryIngestionStore) FindByKey(ctx context.Context, key string) ([]*models.IngestionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.IngestionRecord
	for _, rec := range s.records {
		if rec.IngestionID == key || rec.SnapshotHash == key {
			out = append(out, copyIngestion(rec))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryIngestionStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryIngestionStore) Type() string { return TypeMemory }

// Len returns the number of stored records.
func (s *MemoryIngestionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func copyIngestion(rec *models.IngestionRecord) *models.IngestionRecord {
	c := *rec
	if rec.NodeCount != nil {
		n := *rec.NodeCount
		c.NodeCount = &n
	}
	if rec.EdgeCount != nil {
		n := *rec.EdgeCount
		c.EdgeCount = &n
	}
	return &c
}

// MemoryDLQStore is an in-process DLQStore.
type MemoryDLQStore struct {
	mu      sync.RWMutex
	records map[models.DLQKind][]*models.DLQRecord
	indexed map[models.DLQKind]int
}

func NewMemoryDLQStore() *MemoryDLQStore {
	return &MemoryDLQStore{
		records: make(map[models.DLQKind][]*models.DLQRecord),
		indexed: make(map[models.DLQKind]int),
	}
}

func (s *MemoryDLQStore) Insert(ctx context.Context, rec *models.DLQRecord) error {
	if _, err := models.ParseDLQKind(string(rec.Kind)); err != nil {
		return ErrUnknownKind
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.DLQID != "" {
		for _, existing := range s.records[rec.Kind] {
			if existing.DLQID == rec.DLQID {
				return ErrDuplicateKey
			}
		}
	}
	c := *rec
	s.records[rec.Kind] = append(s.records[rec.Kind], &c)
	return nil
}

func (s *MemoryDLQStore) EnsureIndexes(ctx context.Context, kind models.DLQKind) error {
	if _, err := models.ParseDLQKind(string(kind)); err != nil {
		return ErrUnknownKind
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexed[kind]++
	return nil
}

// IndexCalls reports how many times EnsureIndexes ran for kind.
func (s *MemoryDLQStore) IndexCalls(kind models.DLQKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexed[kind]
}

func (s *MemoryDLQStore) FindByWindow(ctx context.Context, kind models.DLQKind, from, to time.Time) ([]*models.DLQRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.DLQRecord
	for _, rec := range s.records[kind] {
		if inWindow(rec.CreatedAt, from, to) {
			c := *rec
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryDLQStore) FindByID(ctx context.Context, kind models.DLQKind, dlqID string) (*models.DLQRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records[kind] {
		if rec.DLQID == dlqID {
			c := *rec
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// Count returns the number of records stored for kind.
func (s *MemoryDLQStore) Count(kind models.DLQKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[kind])
}
