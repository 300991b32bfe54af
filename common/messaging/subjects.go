package messaging

import "strings"

// SubjectPrefix roots every subject owned by the pipeline.
const SubjectPrefix = "eventvault"

// Subjects used by the pipeline.
// Follow the pattern: eventvault.{area}.{resource}
const (
	SubjectIngestEvents = "eventvault.ingest.events" // anchored envelopes awaiting persistence
	SubjectDLQDomain    = "eventvault.dlq.domain"    // business-rule failures
	SubjectDLQSystem    = "eventvault.dlq.system"    // infrastructure failures
)

// Queue group shared by consumer instances.
const QueueIngestWorkers = "ingest-workers"

// Metadata keys carried as message headers.
const (
	HeaderRequestID   = "X-Request-ID"
	HeaderIngestionID = "X-Ingestion-ID"
)

// SubjectForEndpoint maps an HTTP-style endpoint path onto a subject so the
// same endpoint names can be used with either transport.
// Example: "/dlq/domain" -> "eventvault.dlq.domain".
func SubjectForEndpoint(endpoint string) string {
	trimmed := strings.Trim(endpoint, "/")
	if trimmed == "" {
		return SubjectPrefix
	}
	if strings.HasPrefix(trimmed, SubjectPrefix+".") {
		return trimmed
	}
	return SubjectPrefix + "." + strings.ReplaceAll(trimmed, "/", ".")
}
