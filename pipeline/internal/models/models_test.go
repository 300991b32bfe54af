package models

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEnvelope() *EventEnvelope {
	key := "order-1"
	return &EventEnvelope{
		Kafka: &KafkaMeta{
			Topic:     "orders",
			Partition: 2,
			Offset:    17,
			Timestamp: 1700000000000,
			Key:       &key,
			Headers:   map[string]string{"source": "checkout"},
		},
		Payload: &Payload{Encoding: EncodingBase64, Value: base64.StdEncoding.EncodeToString([]byte(`{"a":1}`))},
	}
}

func TestWithIngestionID_DoesNotMutateCaller(t *testing.T) {
	orig := sampleEnvelope()

	anchored := orig.WithIngestionID("ING-20260101-7")
	anchored.Kafka.Headers["source"] = "changed"
	*anchored.Kafka.Key = "changed"
	anchored.Payload.Value = "changed"

	assert.Equal(t, "", orig.IngestionID)
	assert.Equal(t, "checkout", orig.Kafka.Headers["source"])
	assert.Equal(t, "order-1", *orig.Kafka.Key)
	assert.NotEqual(t, "changed", orig.Payload.Value)
	assert.Equal(t, "ING-20260101-7", anchored.IngestionID)
}

func TestUnanchored(t *testing.T) {
	env := sampleEnvelope().WithIngestionID("ING-1")
	assert.Equal(t, "", env.Unanchored().IngestionID)
	assert.Equal(t, "ING-1", env.IngestionID)
}

func TestEnvelope_WireShape(t *testing.T) {
	raw, err := json.Marshal(sampleEnvelope().WithIngestionID("ING-1"))
	require.NoError(t, err)

	assert.Contains(t, string(raw), `"kafka":{"topic":"orders","partition":2,"offset":17,"timestamp":1700000000000,"key":"order-1","headers":{"source":"checkout"}}`)
	assert.Contains(t, string(raw), `"payload":{"encoding":"base64","value":`)
	assert.Contains(t, string(raw), `"ingestionId":"ING-1"`)
}

func TestParseCompleteEnvelope(t *testing.T) {
	raw, err := json.Marshal(sampleEnvelope())
	require.NoError(t, err)
	env, err := ParseCompleteEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, "orders", env.Kafka.Topic)

	for _, body := range []string{"null", `{}`, `{"foo":1}`, `{"kafka":{"topic":"orders"}}`, `{"payload":{"value":"x"}}`} {
		_, err := ParseCompleteEnvelope([]byte(body))
		assert.ErrorIs(t, err, ErrIncompleteEnvelope, body)
	}

	_, err = ParseCompleteEnvelope([]byte("{not json"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIncompleteEnvelope)
}

func TestPayloadDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		want    string
		wantErr bool
	}{
		{name: "base64", payload: Payload{Encoding: "base64", Value: "aGVsbG8="}, want: "hello"},
		{name: "absent encoding means base64", payload: Payload{Value: "aGVsbG8="}, want: "hello"},
		{name: "utf8", payload: Payload{Encoding: "utf8", Value: "hello"}, want: "hello"},
		{name: "bad base64", payload: Payload{Value: "***"}, wantErr: true},
		{name: "unknown encoding", payload: Payload{Encoding: "gzip", Value: "x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.payload.Decode()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestNewSuccessReceipt_RequiresHashes(t *testing.T) {
	now := time.Now()

	_, err := NewSuccessReceipt("ING-1", "", GraphView{SnapshotHash: "abc"}, "memory", now)
	assert.Error(t, err)

	_, err = NewSuccessReceipt("ING-1", "ph", GraphView{SnapshotHash: "  "}, "memory", now)
	assert.Error(t, err)

	_, err = NewSuccessReceipt("", "ph", GraphView{SnapshotHash: "abc"}, "memory", now)
	assert.Error(t, err)

	r, err := NewSuccessReceipt("ING-1", "ph", GraphView{SnapshotHash: "abc", NodeCount: 3, EdgeCount: 2}, "memory", now)
	require.NoError(t, err)
	assert.True(t, r.OK)
	assert.Nil(t, r.Why)
	assert.Equal(t, 3, r.NodeCount)
}

func TestProcessorResultInvariants(t *testing.T) {
	ok := ProcessorSuccess("PR-1", sampleEnvelope().WithIngestionID("ING-1"))
	assert.True(t, ok.OK)
	assert.Nil(t, ok.Why)
	assert.NotNil(t, ok.Envelope)
	assert.Equal(t, "ING-1", ok.IngestionID)

	failed := ProcessorFailure("PR-2", "", NewWhy(ReasonKafkaTopic))
	assert.False(t, failed.OK)
	require.NotNil(t, failed.Why)
	assert.Equal(t, ReasonKafkaTopic, failed.Why.Reason)

	raw, err := json.Marshal(failed)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "ingestionId")
}

func TestReasonClassification(t *testing.T) {
	assert.True(t, IsBadRequest(ReplayBadRequest("reason")))
	assert.False(t, IsBadRequest(ReasonReplayDisabled))
	assert.True(t, IsIngestionContentFailure(ReasonIngSnapshotHashBlank))
	assert.True(t, IsIngestionContentFailure(ReasonKafkaTopic))
	assert.False(t, IsIngestionContentFailure(ReasonIngStoreFailed))
}

func TestParseDLQKind(t *testing.T) {
	k, err := ParseDLQKind("domain")
	require.NoError(t, err)
	assert.Equal(t, DLQKindDomain, k)

	_, err = ParseDLQKind("other")
	assert.Error(t, err)
}

func TestWhy_Error(t *testing.T) {
	assert.Equal(t, "REST-non_2xx: 503", NewWhy(ReasonRESTNon2xx, "503").Error())
	assert.Equal(t, "REST-call_failed", NewWhy(ReasonRESTCallFailed).Error())
	var nilWhy *Why
	assert.Equal(t, "", nilWhy.Error())
}
