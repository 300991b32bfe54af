package ingestion

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/eventvault/common/logging"
	"github.com/telhawk-systems/eventvault/pipeline/internal/extractor"
	"github.com/telhawk-systems/eventvault/pipeline/internal/identity"
	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
	"github.com/telhawk-systems/eventvault/pipeline/internal/storage"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newService(t *testing.T, store storage.IngestionStore) *Service {
	t.Helper()
	clock := &stepClock{now: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	return NewService(store, logging.Discard(), WithClock(clock.Now))
}

func document(t *testing.T, ingestionID, snapshotHash string) []byte {
	t.Helper()
	doc := Document{
		IngestionID: ingestionID,
		Kafka:       &models.KafkaMeta{Topic: "orders", Partition: 0, Offset: 7, Timestamp: 1_700_000_000_000},
		Payload:     &models.Payload{Encoding: models.EncodingBase64, Value: base64.StdEncoding.EncodeToString([]byte(`{"a":1}`))},
		GraphView:   &models.GraphView{SnapshotHash: snapshotHash, NodeCount: 2, EdgeCount: 1},
	}
	b, err := doc.Marshal()
	require.NoError(t, err)
	return b
}

func TestStoreIngestion_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryIngestionStore()
	svc := newService(t, store)

	first := svc.StoreIngestion(ctx, document(t, "ING-first", "snap-1"))
	require.True(t, first.OK, "%v", first.Why)
	assert.Equal(t, "ING-first", first.IngestionID)
	assert.Equal(t, storage.TypeMemory, first.StoreType)
	assert.NotEmpty(t, first.PayloadHash)

	// A resend proposing another identity converges on the stored one.
	second := svc.StoreIngestion(ctx, document(t, "ING-second", "snap-1"))
	require.True(t, second.OK, "%v", second.Why)
	assert.Equal(t, "ING-first", second.IngestionID)
	assert.False(t, second.CreatedAt.Before(first.CreatedAt))
	assert.Equal(t, 1, store.Len())

	rec, err := store.FindBySnapshotHash(ctx, "snap-1")
	require.NoError(t, err)
	assert.Equal(t, "ING-first", rec.IngestionID)
	assert.Equal(t, second.CreatedAt, rec.CreatedAt)
}

func TestStoreIngestion_TouchNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryIngestionStore()
	future := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, &models.IngestionRecord{
		IngestionID: "ING-old", SnapshotHash: "snap", PayloadHash: "p", Payload: "{}", CreatedAt: future,
	}))

	receipt := newService(t, store).StoreIngestion(ctx, document(t, "ING-new", "snap"))
	require.True(t, receipt.OK)
	assert.Equal(t, "ING-old", receipt.IngestionID)
	assert.Equal(t, future, receipt.CreatedAt)
}

func TestStoreIngestion_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		raw    []byte
		reason string
	}{
		{"nil", nil, models.ReasonIngPayloadBlank},
		{"whitespace", []byte(" \n\t"), models.ReasonIngPayloadBlank},
		{"not json", []byte("hello"), models.ReasonIngPayloadNotJSON},
		{"json array", []byte(`[1,2]`), models.ReasonIngPayloadNotJSON},
		{"missing id", []byte(`{"graphView":{"snapshotHash":"s"}}`), models.ReasonIngIngestionIDMissing},
		{"blank id", []byte(`{"ingestionId":"  ","graphView":{"snapshotHash":"s"}}`), models.ReasonIngIngestionIDMissing},
		{"no graph view", []byte(`{"ingestionId":"ING-1"}`), models.ReasonIngGraphViewNull},
		{"null graph view", []byte(`{"ingestionId":"ING-1","graphView":null}`), models.ReasonIngGraphViewNull},
		{"blank snapshot", []byte(`{"ingestionId":"ING-1","graphView":{"snapshotHash":""}}`), models.ReasonIngSnapshotHashBlank},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryIngestionStore()
			receipt := newService(t, store).StoreIngestion(context.Background(), tt.raw)

			assert.False(t, receipt.OK)
			require.NotNil(t, receipt.Why)
			assert.Equal(t, tt.reason, receipt.Why.Reason)
			assert.Empty(t, receipt.IngestionID)
			assert.Equal(t, 0, store.Len(), "no write on rejection")
		})
	}
}

// staleReadStore misses the first lookup so the insert hits the unique
// constraint, the way a concurrent writer would cause.
type staleReadStore struct {
	*storage.MemoryIngestionStore
	mu     sync.Mutex
	missed bool
}

func (s *staleReadStore) FindBySnapshotHash(ctx context.Context, hash string) (*models.IngestionRecord, error) {
	s.mu.Lock()
	miss := !s.missed
	s.missed = true
	s.mu.Unlock()
	if miss {
		return nil, storage.ErrNotFound
	}
	return s.MemoryIngestionStore.FindBySnapshotHash(ctx, hash)
}

func TestStoreIngestion_DuplicateKeyIsSuccess(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryIngestionStore()
	require.NoError(t, mem.Insert(ctx, &models.IngestionRecord{
		IngestionID: "ING-winner", SnapshotHash: "snap", PayloadHash: "p", Payload: "{}",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	store := &staleReadStore{MemoryIngestionStore: mem}

	receipt := newService(t, store).StoreIngestion(ctx, document(t, "ING-loser", "snap"))
	require.True(t, receipt.OK, "%v", receipt.Why)
	assert.Equal(t, "ING-winner", receipt.IngestionID)
	assert.Equal(t, 1, mem.Len())

	rec, err := mem.FindBySnapshotHash(ctx, "snap")
	require.NoError(t, err)
	assert.Equal(t, receipt.CreatedAt, rec.CreatedAt, "loser still touches the record")
}

func TestStoreIngestion_ConcurrentSameContent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryIngestionStore()
	svc := newService(t, store)

	const n = 16
	docs := make([][]byte, n)
	for i := range docs {
		docs[i] = document(t, "ING-"+strings.Repeat("x", i+1), "snap-race")
	}
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			receipt := svc.StoreIngestion(ctx, docs[i])
			if receipt.OK {
				ids[i] = receipt.IngestionID
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.Len())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

type failingStore struct {
	*storage.MemoryIngestionStore
	err error
}

func (s *failingStore) Insert(context.Context, *models.IngestionRecord) error { return s.err }

func TestStoreIngestion_StoreFailure(t *testing.T) {
	store := &failingStore{MemoryIngestionStore: storage.NewMemoryIngestionStore(), err: errors.New("disk full")}

	receipt := newService(t, store).StoreIngestion(context.Background(), document(t, "ING-1", "snap"))
	assert.False(t, receipt.OK)
	assert.Equal(t, models.ReasonIngStoreFailed, receipt.Why.Reason)
	assert.Contains(t, receipt.Why.Details, "disk full")
}

func TestStoreIngestion_PersistsDocument(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryIngestionStore()
	raw := document(t, "ING-1", "snap")

	receipt := newService(t, store).StoreIngestion(ctx, raw)
	require.True(t, receipt.OK)

	rec, err := store.FindBySnapshotHash(ctx, "snap")
	require.NoError(t, err)
	assert.Equal(t, extractor.PayloadHash(raw), rec.PayloadHash)
	require.NotNil(t, rec.NodeCount)
	assert.Equal(t, 2, *rec.NodeCount)

	// The stored payload replays as an envelope.
	env, err := models.ParseEnvelope([]byte(rec.Payload))
	require.NoError(t, err)
	assert.Equal(t, "orders", env.Kafka.Topic)
	assert.Equal(t, "ING-1", env.IngestionID)

	var generic map[string]any
	require.NoError(t, json.Unmarshal([]byte(rec.Payload), &generic))
	assert.Contains(t, generic, "graphView")
}

func TestResolveIngestionID(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryIngestionStore()
	gen := identity.NewGeneratorWithClock(identity.PrefixIngestion, 0,
		func() time.Time { return time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC) })
	svc := NewService(store, logging.Discard(), WithGenerator(gen))

	id, err := svc.ResolveIngestionID(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, "ING-20260504-1", id)

	require.NoError(t, store.Insert(ctx, &models.IngestionRecord{IngestionID: "ING-kept", SnapshotHash: "known"}))
	id, err = svc.ResolveIngestionID(ctx, "known")
	require.NoError(t, err)
	assert.Equal(t, "ING-kept", id)
}

func TestResolver(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryIngestionStore()
	svc := newService(t, store)
	ex := extractor.New()
	resolver := NewResolver(svc, ex, logging.Discard())

	body := []byte(`{"order":42}`)
	env := &models.EventEnvelope{
		Kafka:   &models.KafkaMeta{Topic: "orders", Timestamp: 1},
		Payload: &models.Payload{Value: base64.StdEncoding.EncodeToString(body)},
	}

	fresh := resolver.Resolve(ctx, env)
	assert.True(t, strings.HasPrefix(fresh, "ING-"))

	view, err := ex.Extract(ctx, body)
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, &models.IngestionRecord{IngestionID: "ING-seen", SnapshotHash: view.SnapshotHash}))
	assert.Equal(t, "ING-seen", resolver.Resolve(ctx, env))

	broken := env.Clone()
	broken.Payload.Value = "%%%"
	assert.True(t, strings.HasPrefix(resolver.Resolve(ctx, broken), "ING-"), "undecodable payload still gets an identity")
}
