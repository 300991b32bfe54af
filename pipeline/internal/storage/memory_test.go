package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
)

func ingestionRecord(id, hash string, at time.Time) *models.IngestionRecord {
	nodes, edges := 3, 2
	return &models.IngestionRecord{
		IngestionID:  id,
		SnapshotHash: hash,
		PayloadHash:  "ph-" + hash,
		Payload:      `{"ingestionId":"` + id + `"}`,
		CreatedAt:    at,
		NodeCount:    &nodes,
		EdgeCount:    &edges,
	}
}

func TestMemoryIngestionStore_InsertFindTouch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIngestionStore()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Insert(ctx, ingestionRecord("ING-1", "h1", t0)))
	assert.ErrorIs(t, s.Insert(ctx, ingestionRecord("ING-2", "h1", t0)), ErrDuplicateKey)
	assert.Equal(t, 1, s.Len())

	got, err := s.FindBySnapshotHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "ING-1", got.IngestionID)

	require.NoError(t, s.Touch(ctx, "h1", t0.Add(time.Hour)))
	got, err = s.FindBySnapshotHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), got.CreatedAt)
	assert.Equal(t, "ING-1", got.IngestionID)

	require.NoError(t, s.Touch(ctx, "h1", t0.Add(time.Minute)))
	got, err = s.FindBySnapshotHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), got.CreatedAt, "an older touch must not move createdAt backwards")

	_, err = s.FindBySnapshotHash(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Touch(ctx, "missing", t0), ErrNotFound)
}

func TestMemoryIngestionStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIngestionStore()
	require.NoError(t, s.Insert(ctx, ingestionRecord("ING-1", "h1", time.Now())))

	got, err := s.FindBySnapshotHash(ctx, "h1")
	require.NoError(t, err)
	got.IngestionID = "mutated"
	*got.NodeCount = 99

	again, err := s.FindBySnapshotHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "ING-1", again.IngestionID)
	assert.Equal(t, 3, *again.NodeCount)
}

func TestMemoryIngestionStore_WindowIsHalfOpen(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIngestionStore()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(time.Minute)

	require.NoError(t, s.Insert(ctx, ingestionRecord("ING-c", "hc", to)))
	require.NoError(t, s.Insert(ctx, ingestionRecord("ING-b", "hb", from.Add(time.Millisecond))))
	require.NoError(t, s.Insert(ctx, ingestionRecord("ING-a", "ha", from)))

	got, err := s.FindByWindow(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ING-a", got[0].IngestionID)
	assert.Equal(t, "ING-b", got[1].IngestionID)
}

func TestMemoryIngestionStore_FindByKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIngestionStore()
	require.NoError(t, s.Insert(ctx, ingestionRecord("ING-1", "h1", time.Now())))

	byID, err := s.FindByKey(ctx, "ING-1")
	require.NoError(t, err)
	assert.Len(t, byID, 1)

	byHash, err := s.FindByKey(ctx, "h1")
	require.NoError(t, err)
	assert.Len(t, byHash, 1)

	none, err := s.FindByKey(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryDLQStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryDLQStore()
	now := time.Now().UTC()

	rec := &models.DLQRecord{DLQID: "d1", Kind: models.DLQKindDomain, PayloadSHA256: "x", Payload: "{}", CreatedAt: now}
	require.NoError(t, s.Insert(ctx, rec))
	assert.ErrorIs(t, s.Insert(ctx, rec), ErrDuplicateKey)

	// Same payload under a fresh id is a second record.
	again := *rec
	again.DLQID = "d2"
	require.NoError(t, s.Insert(ctx, &again))

	assert.Equal(t, 2, s.Count(models.DLQKindDomain))
	assert.Equal(t, 0, s.Count(models.DLQKindSystem))

	got, err := s.FindByID(ctx, models.DLQKindDomain, "d2")
	require.NoError(t, err)
	assert.Equal(t, "d2", got.DLQID)

	_, err = s.FindByID(ctx, models.DLQKindSystem, "d2")
	assert.ErrorIs(t, err, ErrNotFound)

	window, err := s.FindByWindow(ctx, models.DLQKindDomain, now, now.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, window, 2)

	assert.ErrorIs(t, s.Insert(ctx, &models.DLQRecord{Kind: "other"}), ErrUnknownKind)
	assert.ErrorIs(t, s.EnsureIndexes(ctx, "other"), ErrUnknownKind)
	require.NoError(t, s.EnsureIndexes(ctx, models.DLQKindSystem))
	assert.Equal(t, 1, s.IndexCalls(models.DLQKindSystem))
}
