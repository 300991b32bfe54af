// Package validator checks submitted envelopes before any I/O happens.
//
// Checks run in a fixed order and the first failure wins:
//
//	missing_envelope, missing_kafka, kafka_headers_type, kafka_topic,
//	kafka_partition, kafka_timestamp, kafka_offset, payload_value_base64
package validator

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
)

type rawEnvelope struct {
	Kafka   json.RawMessage `json:"kafka"`
	Payload json.RawMessage `json:"payload"`
}

type rawKafka struct {
	Topic     json.RawMessage `json:"topic"`
	Partition json.RawMessage `json:"partition"`
	Offset    json.RawMessage `json:"offset"`
	Timestamp json.RawMessage `json:"timestamp"`
	Headers   json.RawMessage `json:"headers"`
}

type rawPayload struct {
	Encoding json.RawMessage `json:"encoding"`
	Value    json.RawMessage `json:"value"`
}

// Validate returns the first violated check for raw, or nil.
func Validate(raw []byte) *models.Why {
	_, why := Parse(raw)
	return why
}

// Parse validates raw and, on success, returns the typed envelope.
func Parse(raw []byte) (*models.EventEnvelope, *models.Why) {
	var env rawEnvelope
	if isNull(raw) || !isObject(raw) || json.Unmarshal(raw, &env) != nil {
		return nil, models.NewWhy(models.ReasonMissingEnvelope)
	}

	if isNull(env.Kafka) || !isObject(env.Kafka) {
		return nil, models.NewWhy(models.ReasonMissingKafka)
	}
	var k rawKafka
	if err := json.Unmarshal(env.Kafka, &k); err != nil {
		return nil, models.NewWhy(models.ReasonMissingKafka, err.Error())
	}

	if !isNull(k.Headers) {
		var headers map[string]string
		if !isObject(k.Headers) || json.Unmarshal(k.Headers, &headers) != nil {
			return nil, models.NewWhy(models.ReasonKafkaHeadersType)
		}
	}

	var topic string
	if json.Unmarshal(k.Topic, &topic) != nil || strings.TrimSpace(topic) == "" {
		return nil, models.NewWhy(models.ReasonKafkaTopic)
	}

	var partition int32
	if isNull(k.Partition) || json.Unmarshal(k.Partition, &partition) != nil || partition < 0 {
		return nil, models.NewWhy(models.ReasonKafkaPartition)
	}

	var ts int64
	if !isNull(k.Timestamp) {
		if err := json.Unmarshal(k.Timestamp, &ts); err != nil {
			return nil, models.NewWhy(models.ReasonKafkaTimestamp, err.Error())
		}
	}
	if ts <= 0 {
		return nil, models.NewWhy(models.ReasonKafkaTimestamp)
	}

	var offset int64
	if isNull(k.Offset) || json.Unmarshal(k.Offset, &offset) != nil || offset < 0 {
		return nil, models.NewWhy(models.ReasonKafkaOffset)
	}

	if why := checkPayload(env.Payload); why != nil {
		return nil, why
	}

	typed, err := models.ParseEnvelope(raw)
	if err != nil {
		return nil, models.NewWhy(models.ReasonMissingEnvelope, err.Error())
	}
	return typed, nil
}

// ValidateEnvelope runs the same checks against an already decoded envelope.
func ValidateEnvelope(env *models.EventEnvelope) *models.Why {
	if env == nil {
		return models.NewWhy(models.ReasonMissingEnvelope)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return models.NewWhy(models.ReasonMissingEnvelope, err.Error())
	}
	return Validate(raw)
}

func checkPayload(raw json.RawMessage) *models.Why {
	if isNull(raw) || !isObject(raw) {
		return models.NewWhy(models.ReasonPayloadValueBase64, "payload missing")
	}
	var p rawPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.NewWhy(models.ReasonPayloadValueBase64, err.Error())
	}

	encoding := models.EncodingBase64
	if !isNull(p.Encoding) {
		if err := json.Unmarshal(p.Encoding, &encoding); err != nil {
			return models.NewWhy(models.ReasonPayloadValueBase64, "encoding must be a string")
		}
		if encoding == "" {
			encoding = models.EncodingBase64
		}
	}

	var value string
	if isNull(p.Value) || json.Unmarshal(p.Value, &value) != nil {
		return models.NewWhy(models.ReasonPayloadValueBase64, "value must be a string")
	}

	switch encoding {
	case models.EncodingBase64:
		if _, err := base64.StdEncoding.DecodeString(value); err != nil {
			return models.NewWhy(models.ReasonPayloadValueBase64, err.Error())
		}
	case models.EncodingUTF8:
	default:
		return models.NewWhy(models.ReasonPayloadValueBase64, "unsupported encoding "+encoding)
	}
	return nil
}

func isNull(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func isObject(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
