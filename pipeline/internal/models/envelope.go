package models

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// Payload encodings accepted on the wire. An absent encoding means base64.
const (
	EncodingBase64 = "base64"
	EncodingUTF8   = "utf8"
)

// EventEnvelope is the transport-plus-payload unit submitted for ingestion.
// Field names follow the wire contract and must not change.
type EventEnvelope struct {
	// IngestionID is set only on anchored copies produced by the orchestrator.
	IngestionID string     `json:"ingestionId,omitempty"`
	Kafka       *KafkaMeta `json:"kafka"`
	Payload     *Payload   `json:"payload"`
}

// KafkaMeta is the transport metadata block.
type KafkaMeta struct {
	Topic     string            `json:"topic"`
	Partition int32             `json:"partition"`
	Offset    int64             `json:"offset"`
	Timestamp int64             `json:"timestamp"`
	Key       *string           `json:"key,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// Payload carries the opaque event body.
type Payload struct {
	Encoding string `json:"encoding,omitempty"`
	Value    string `json:"value"`
}

// ParseEnvelope decodes raw into an envelope.
func ParseEnvelope(raw []byte) (*EventEnvelope, error) {
	var env EventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}
	return &env, nil
}

// ErrIncompleteEnvelope is returned when JSON decodes but carries no
// transport metadata block or no payload.
var ErrIncompleteEnvelope = errors.New("envelope missing kafka or payload block")

// ParseCompleteEnvelope decodes raw and requires both the kafka and payload
// blocks to be present.
func ParseCompleteEnvelope(raw []byte) (*EventEnvelope, error) {
	env, err := ParseEnvelope(raw)
	if err != nil {
		return nil, err
	}
	if env.Kafka == nil || env.Payload == nil {
		return nil, ErrIncompleteEnvelope
	}
	return env, nil
}

// Clone returns a deep copy of e.
func (e *EventEnvelope) Clone() *EventEnvelope {
	if e == nil {
		return nil
	}
	out := &EventEnvelope{IngestionID: e.IngestionID}
	if e.Kafka != nil {
		k := *e.Kafka
		if e.Kafka.Key != nil {
			key := *e.Kafka.Key
			k.Key = &key
		}
		k.Headers = maps.Clone(e.Kafka.Headers)
		out.Kafka = &k
	}
	if e.Payload != nil {
		p := *e.Payload
		out.Payload = &p
	}
	return out
}

// WithIngestionID returns an anchored copy of e; e itself is not modified.
func (e *EventEnvelope) WithIngestionID(id string) *EventEnvelope {
	out := e.Clone()
	if out == nil {
		out = &EventEnvelope{}
	}
	out.IngestionID = id
	return out
}

// Unanchored returns a copy of e without an ingestion identity. Replay
// resubmits unanchored envelopes so identity is resolved afresh.
func (e *EventEnvelope) Unanchored() *EventEnvelope {
	out := e.Clone()
	if out != nil {
		out.IngestionID = ""
	}
	return out
}

// DecodedPayload returns the payload bytes according to the declared encoding.
func (e *EventEnvelope) DecodedPayload() ([]byte, error) {
	if e == nil || e.Payload == nil {
		return nil, fmt.Errorf("payload missing")
	}
	return e.Payload.Decode()
}

// Decode returns the payload bytes according to the declared encoding.
func (p *Payload) Decode() ([]byte, error) {
	switch p.Encoding {
	case "", EncodingBase64:
		b, err := base64.StdEncoding.DecodeString(p.Value)
		if err != nil {
			return nil, fmt.Errorf("decode base64 payload: %w", err)
		}
		return b, nil
	case EncodingUTF8:
		return []byte(p.Value), nil
	default:
		return nil, fmt.Errorf("unsupported payload encoding %q", p.Encoding)
	}
}
