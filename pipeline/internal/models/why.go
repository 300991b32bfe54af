// Package models holds the value types exchanged between the pipeline
// components: envelopes, outcomes, receipts and replay requests.
package models

import "strings"

// Why explains a failed outcome with a stable reason code and optional
// free-form details. Successful outcomes carry a nil *Why.
type Why struct {
	Reason  string `json:"reason"`
	Details string `json:"details,omitempty"`
}

// NewWhy builds a Why for reason with optional details.
func NewWhy(reason string, details ...string) *Why {
	return &Why{Reason: reason, Details: strings.Join(details, "; ")}
}

func (w *Why) Error() string {
	if w == nil {
		return ""
	}
	if w.Details == "" {
		return w.Reason
	}
	return w.Reason + ": " + w.Details
}

// Reason codes. These strings are part of the external contract.
const (
	ReasonMissingEnvelope    = "VALIDATE-missing_envelope"
	ReasonMissingKafka       = "VALIDATE-missing_kafka"
	ReasonKafkaHeadersType   = "VALIDATE-kafka_headers_type"
	ReasonKafkaTopic         = "VALIDATE-kafka_topic"
	ReasonKafkaPartition     = "VALIDATE-kafka_partition"
	ReasonKafkaTimestamp     = "VALIDATE-kafka_timestamp"
	ReasonKafkaOffset        = "VALIDATE-kafka_offset"
	ReasonPayloadValueBase64 = "VALIDATE-payload_value_base64"

	ReasonRESTCallFailed        = "REST-call_failed"
	ReasonRESTNon2xx            = "REST-non_2xx"
	ReasonRESTTransportNotReady = "REST-transport_not_ready"
	ReasonRESTRequestMalformed  = "REST-request_malformed"
	ReasonRESTPayloadBlank      = "REST-payload_blank"
	ReasonRESTRateLimited       = "REST-rate_limited"

	ReasonIngPayloadBlank       = "ING-payload_blank"
	ReasonIngPayloadNotJSON     = "ING-payload_not_json"
	ReasonIngIngestionIDMissing = "ING-ingestion-id-missing"
	ReasonIngGraphViewNull      = "ING-graphView_null"
	ReasonIngSnapshotHashBlank  = "ING-snapshotHash_blank"
	ReasonIngPayloadHashBlank   = "ING-payloadHash_blank"
	ReasonIngStoreFailed        = "ING-store_failed"
	ReasonIngExtractFailed      = "ING-extract_failed"

	ReasonReplayBadRequestPrefix = "REPLAY-bad_request-"
	ReasonReplayOrchestratorNil  = "REPLAY-orchestrator_unavailable"
	ReasonReplayDisabled         = "CONFIG-replay_disabled"
)

// ReplayBadRequest returns the bad-request reason for field.
func ReplayBadRequest(field string) string {
	return ReasonReplayBadRequestPrefix + field
}

// IsBadRequest reports whether reason is a request-rejection code.
func IsBadRequest(reason string) bool {
	return strings.Contains(reason, "bad_request-")
}

// IsIngestionContentFailure reports whether reason describes a problem with
// the content itself (routed to the domain DLQ) rather than infrastructure.
func IsIngestionContentFailure(reason string) bool {
	switch reason {
	case ReasonIngPayloadBlank, ReasonIngPayloadNotJSON, ReasonIngIngestionIDMissing,
		ReasonIngGraphViewNull, ReasonIngSnapshotHashBlank, ReasonIngPayloadHashBlank:
		return true
	}
	return strings.HasPrefix(reason, "VALIDATE-")
}
