package models

import (
	"fmt"
	"time"
)

// IngestionRecord is the persisted ingestion document. SnapshotHash is
// unique; IngestionID is fixed at first insert and only CreatedAt moves on
// later touches.
type IngestionRecord struct {
	IngestionID  string    `json:"ingestionId"`
	SnapshotHash string    `json:"snapshotHash"`
	PayloadHash  string    `json:"payloadHash"`
	Payload      string    `json:"payload"`
	CreatedAt    time.Time `json:"createdAt"`
	NodeCount    *int      `json:"nodeCount,omitempty"`
	EdgeCount    *int      `json:"edgeCount,omitempty"`
}

// DLQKind classifies a dead-lettered failure.
type DLQKind string

const (
	DLQKindDomain DLQKind = "domain"
	DLQKindSystem DLQKind = "system"
)

// ParseDLQKind validates s as a DLQ kind.
func ParseDLQKind(s string) (DLQKind, error) {
	switch DLQKind(s) {
	case DLQKindDomain, DLQKindSystem:
		return DLQKind(s), nil
	}
	return "", fmt.Errorf("unknown dlq kind %q", s)
}

// DLQRecord is a persisted failure. Records are never deduplicated by
// content: every insert mints a fresh DLQID.
type DLQRecord struct {
	DLQID         string    `json:"dlqId"`
	Kind          DLQKind   `json:"kind"`
	PayloadSHA256 string    `json:"payloadSha256"`
	Payload       string    `json:"payload"`
	CreatedAt     time.Time `json:"createdAt"`
}
