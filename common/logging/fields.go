package logging

import "log/slog"

// Field names shared by every pipeline component.
const (
	FieldService      = "service"
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldIngestionID  = "ingestion_id"
	FieldSnapshotHash = "snapshot_hash"
	FieldReason       = "reason"
	FieldDLQID        = "dlq_id"
	FieldDLQKind      = "dlq_kind"
	FieldReplayID     = "replay_id"
	FieldTopic        = "topic"
	FieldEndpoint     = "endpoint"
	FieldStatus       = "status"
	FieldDuration     = "duration_ms"
	FieldError        = "error"
)

func Service(name string) slog.Attr { return slog.String(FieldService, name) }

func IngestionID(id string) slog.Attr { return slog.String(FieldIngestionID, id) }

func SnapshotHash(hash string) slog.Attr { return slog.String(FieldSnapshotHash, hash) }

func Reason(code string) slog.Attr { return slog.String(FieldReason, code) }

func DLQID(id string) slog.Attr { return slog.String(FieldDLQID, id) }

func DLQKind(kind string) slog.Attr { return slog.String(FieldDLQKind, kind) }

func ReplayID(id string) slog.Attr { return slog.String(FieldReplayID, id) }

func Topic(topic string) slog.Attr { return slog.String(FieldTopic, topic) }

func Endpoint(endpoint string) slog.Attr { return slog.String(FieldEndpoint, endpoint) }

func Status(code int) slog.Attr { return slog.Int(FieldStatus, code) }

// Duration records milliseconds.
func Duration(ms int64) slog.Attr { return slog.Int64(FieldDuration, ms) }

// Error returns an attribute for err; a nil error is recorded as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
