package models

import "time"

// ReplayRequest selects historical events for resubmission. Reason is
// always required; the other fields depend on the selection mode.
type ReplayRequest struct {
	Reason                 string `json:"reason"`
	FromTime               string `json:"fromTime,omitempty"`
	ToTime                 string `json:"toTime,omitempty"`
	ObjectKeyOrIngestionID string `json:"objectKeyOrIngestionId,omitempty"`
	DLQID                  string `json:"dlqId,omitempty"`
}

// ReplayEvent is a selected candidate. Every field is best effort because
// stored records may be malformed.
type ReplayEvent struct {
	ID        string     `json:"id,omitempty"`
	Payload   string     `json:"payload,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ReplayResult summarises one replay call.
type ReplayResult struct {
	OK            bool   `json:"ok"`
	ReplayID      string `json:"replayId,omitempty"`
	MatchedCount  int    `json:"matchedCount"`
	ReplayedCount int    `json:"replayedCount"`
	Reason        string `json:"reason,omitempty"`
}

// ReplayRejected builds a failed result that never reached selection.
func ReplayRejected(reason string) ReplayResult {
	return ReplayResult{Reason: reason}
}
