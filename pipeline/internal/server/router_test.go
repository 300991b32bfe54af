package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/eventvault/common/logging"
	"github.com/telhawk-systems/eventvault/common/middleware"
	"github.com/telhawk-systems/eventvault/pipeline/internal/features"
	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
	"github.com/telhawk-systems/eventvault/pipeline/internal/storage"
)

type testPipeline struct {
	router http.Handler
	ingest *storage.MemoryIngestionStore
	dlq    *storage.MemoryDLQStore
	flags  *features.Static
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()
	tp := &testPipeline{
		ingest: storage.NewMemoryIngestionStore(),
		dlq:    storage.NewMemoryDLQStore(),
		flags:  features.NewStatic(map[string]bool{features.Replay: true}),
	}
	p := NewPipeline(Deps{
		IngestionStore: tp.ingest,
		DLQStore:       tp.dlq,
		Flags:          tp.flags,
		Logger:         logging.Discard(),
	})
	require.NotNil(t, p.Local)
	tp.router = NewRouter(p.Handler)
	return tp
}

func (tp *testPipeline) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	tp.router.ServeHTTP(rr, req)
	return rr
}

func envelope(topic string, offset int64, payload string) string {
	env := models.EventEnvelope{
		Kafka: &models.KafkaMeta{Topic: topic, Partition: 0, Offset: offset, Timestamp: 1700000000000 + offset},
		Payload: &models.Payload{
			Encoding: models.EncodingBase64,
			Value:    base64.StdEncoding.EncodeToString([]byte(payload)),
		},
	}
	raw, _ := json.Marshal(env)
	return string(raw)
}

func ingestionBody(t *testing.T, env string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]string{"payload": env})
	require.NoError(t, err)
	return b
}

func TestNewRouter_Routes(t *testing.T) {
	tp := newTestPipeline(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/ingestion"},
		{http.MethodPost, "/replay/time-window"},
		{http.MethodPost, "/replay/ingestion"},
		{http.MethodPost, "/replay/dlq/domain"},
		{http.MethodPost, "/replay/dlq/system"},
		{http.MethodGet, "/dlq/domain"},
		{http.MethodGet, "/dlq/system/by-id"},
		{http.MethodPost, "/ingest/events"},
		{http.MethodPost, "/dlq/system"},
		{http.MethodGet, "/healthz"},
		{http.MethodGet, "/readyz"},
		{http.MethodGet, "/metrics"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rr := tp.do(t, rt.method, rt.path, []byte(`{}`))
			assert.NotEqual(t, http.StatusNotFound, rr.Code, "%s not registered", rt.path)
			assert.NotEmpty(t, rr.Header().Get(middleware.HeaderRequestID))
		})
	}
}

func TestNewRouter_MethodMismatch(t *testing.T) {
	tp := newTestPipeline(t)

	rr := tp.do(t, http.MethodGet, "/ingestion", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = tp.do(t, http.MethodDelete, "/dlq/domain", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestNewRouter_PropagatesRequestID(t *testing.T) {
	tp := newTestPipeline(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(middleware.HeaderRequestID, "req-42")
	rr := httptest.NewRecorder()

	tp.router.ServeHTTP(rr, req)

	assert.Equal(t, "req-42", rr.Header().Get(middleware.HeaderRequestID))
}

func TestPipeline_IngestIsIdempotent(t *testing.T) {
	tp := newTestPipeline(t)
	env := envelope("orders", 1, `{"order":"A-1","total":10}`)

	first := tp.do(t, http.MethodPost, "/ingestion", ingestionBody(t, env))
	require.Equal(t, http.StatusOK, first.Code)
	var r1 models.ProcessorResult
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &r1))
	require.True(t, r1.OK, "why: %v", r1.Why)
	assert.True(t, strings.HasPrefix(r1.IngestionID, "ING-"))
	assert.Equal(t, r1.IngestionID, r1.Envelope.IngestionID)
	assert.Equal(t, 1, tp.ingest.Len())

	// Same content on a different offset collapses onto the same record.
	resend := envelope("orders", 2, `{"total":10,"order":"A-1"}`)
	second := tp.do(t, http.MethodPost, "/ingestion", ingestionBody(t, resend))
	var r2 models.ProcessorResult
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &r2))
	require.True(t, r2.OK)
	assert.Equal(t, r1.IngestionID, r2.IngestionID)
	assert.Equal(t, 1, tp.ingest.Len())
	assert.Equal(t, 0, tp.dlq.Count(models.DLQKindDomain))
}

func TestPipeline_InvalidEnvelopeNeverReachesStore(t *testing.T) {
	tp := newTestPipeline(t)
	env := `{"kafka":{"topic":"","partition":0,"offset":0,"timestamp":1},"payload":{"value":"e30="}}`

	rr := tp.do(t, http.MethodPost, "/ingestion", ingestionBody(t, env))

	require.Equal(t, http.StatusOK, rr.Code)
	var res models.ProcessorResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.False(t, res.OK)
	assert.Equal(t, models.ReasonKafkaTopic, res.Why.Reason)
	assert.Empty(t, res.IngestionID)
	assert.Equal(t, 0, tp.ingest.Len())
}

func TestPipeline_ReplayKeepsIdentity(t *testing.T) {
	tp := newTestPipeline(t)
	env := envelope("orders", 7, `{"order":"B-2"}`)
	rr := tp.do(t, http.MethodPost, "/ingestion", ingestionBody(t, env))
	var first models.ProcessorResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &first))
	require.True(t, first.OK)

	rr = tp.do(t, http.MethodPost, "/replay/ingestion",
		[]byte(`{"reason":"reprocess","objectKeyOrIngestionId":"`+first.IngestionID+`"}`))

	require.Equal(t, http.StatusOK, rr.Code)
	var res models.ReplayResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.True(t, res.OK)
	assert.True(t, strings.HasPrefix(res.ReplayID, "RPL-"))
	assert.Equal(t, 1, res.MatchedCount)
	assert.Equal(t, 1, res.ReplayedCount)
	assert.Equal(t, 1, tp.ingest.Len())

	recs, err := tp.ingest.FindByKey(t.Context(), first.IngestionID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, first.IngestionID, recs[0].IngestionID)
}

func TestPipeline_ReplayStatuses(t *testing.T) {
	tp := newTestPipeline(t)

	rr := tp.do(t, http.MethodPost, "/replay/time-window", []byte(`{"fromTime":"2026-01-01T00:00:00Z","toTime":"2026-01-02T00:00:00Z"}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = tp.do(t, http.MethodPost, "/replay/time-window", []byte(`{"reason":"r","fromTime":"2026-01-01T00:00:00Z","toTime":"2026-01-02T00:00:00Z"}`))
	assert.Equal(t, http.StatusOK, rr.Code)
	var empty models.ReplayResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &empty))
	assert.Equal(t, 0, empty.MatchedCount)

	tp.flags.Set(features.Replay, false)
	rr = tp.do(t, http.MethodPost, "/replay/dlq/domain", []byte(`{"reason":"r","dlqId":"x"}`))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestPipeline_UndeliverableEventIsDeadLettered(t *testing.T) {
	tp := newTestPipeline(t)

	rr := tp.do(t, http.MethodPost, "/ingest/events", []byte(`{"kafka":null}`))
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, 1, tp.dlq.Count(models.DLQKindDomain))

	rr = tp.do(t, http.MethodGet, "/dlq/domain", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var recs []models.DLQRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, models.DLQKindDomain, recs[0].Kind)

	rr = tp.do(t, http.MethodGet, "/dlq/domain/by-id?dlqId="+recs[0].DLQID, nil)
	var rec models.DLQRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, recs[0].DLQID, rec.DLQID)
	assert.Equal(t, `{"kafka":null}`, rec.Payload)
}

func TestPipeline_Probes(t *testing.T) {
	tp := newTestPipeline(t)
	tp.do(t, http.MethodPost, "/ingestion", ingestionBody(t, envelope("orders", 1, `{"x":1}`)))

	rr := tp.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"submitted":1`)

	rr = tp.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
