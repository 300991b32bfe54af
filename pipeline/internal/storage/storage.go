// Package storage provides the document stores behind the idempotent
// ingestion store and the DLQ, in Postgres and in-memory flavours.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrUnknownKind  = errors.New("unknown dlq kind")
)

// Store type names reported in receipts.
const (
	TypePostgres = "postgres"
	TypeMemory   = "memory"
)

// IngestionStore persists ingestion records keyed uniquely by snapshot hash.
type IngestionStore interface {
	// FindBySnapshotHash returns ErrNotFound when no record exists.
	FindBySnapshotHash(ctx context.Context, snapshotHash string) (*models.IngestionRecord, error)
	// Insert returns ErrDuplicateKey when the snapshot hash already exists.
	Insert(ctx context.Context, rec *models.IngestionRecord) error
	// Touch moves created_at of an existing record forward to at, never
	// backwards; ErrNotFound otherwise.
	Touch(ctx context.Context, snapshotHash string, at time.Time) error
	// FindByWindow returns records with from <= created_at < to, oldest first.
	FindByWindow(ctx context.Context, from, to time.Time) ([]*models.IngestionRecord, error)
	// FindByKey returns records whose ingestion id or snapshot hash equals key.
	FindByKey(ctx context.Context, key string) ([]*models.IngestionRecord, error)
	Ping(ctx context.Context) error
	Type() string
}

// DLQStore persists dead-lettered failures, one collection per kind.
type DLQStore interface {
	Insert(ctx context.Context, rec *models.DLQRecord) error
	// EnsureIndexes creates the lookup indexes for kind. It is idempotent.
	EnsureIndexes(ctx context.Context, kind models.DLQKind) error
	FindByWindow(ctx context.Context, kind models.DLQKind, from, to time.Time) ([]*models.DLQRecord, error)
	// FindByID returns ErrNotFound when no record has dlqID.
	FindByID(ctx context.Context, kind models.DLQKind, dlqID string) (*models.DLQRecord, error)
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
