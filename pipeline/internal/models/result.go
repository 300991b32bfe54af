package models

import (
	"fmt"
	"strings"
	"time"
)

// ProcessorResult is the outcome of orchestrating one envelope.
//
// OK results always carry the anchored envelope and a nil Why; failed results
// always carry a Why. IngestionID is present on failures that happened after
// identity assignment.
type ProcessorResult struct {
	ID          string         `json:"id"`
	OK          bool           `json:"ok"`
	IngestionID string         `json:"ingestionId,omitempty"`
	Envelope    *EventEnvelope `json:"envelope,omitempty"`
	Why         *Why           `json:"why"`
}

// ProcessorSuccess builds an OK result.
func ProcessorSuccess(id string, envelope *EventEnvelope) ProcessorResult {
	return ProcessorResult{
		ID:          id,
		OK:          true,
		IngestionID: envelope.IngestionID,
		Envelope:    envelope,
	}
}

// ProcessorFailure builds a failed result; ingestionID may be empty.
func ProcessorFailure(id, ingestionID string, why *Why) ProcessorResult {
	return ProcessorResult{
		ID:          id,
		IngestionID: ingestionID,
		Why:         why,
	}
}

// GraphView summarises the facts extracted from a payload. SnapshotHash is
// the content fingerprint used as the dedup key.
type GraphView struct {
	SnapshotHash string `json:"snapshotHash"`
	NodeCount    int    `json:"nodeCount"`
	EdgeCount    int    `json:"edgeCount"`
}

// IngestionReceipt is the outcome of a StoreIngestion call.
type IngestionReceipt struct {
	IngestionID  string    `json:"ingestionId,omitempty"`
	OK           bool      `json:"ok"`
	Why          *Why      `json:"why"`
	PayloadHash  string    `json:"payloadHash,omitempty"`
	SnapshotHash string    `json:"snapshotHash,omitempty"`
	NodeCount    int       `json:"nodeCount"`
	EdgeCount    int       `json:"edgeCount"`
	StoreType    string    `json:"storeType"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewSuccessReceipt builds an OK receipt. Content cannot be anchored
// without both hashes, so blank hashes are rejected.
func NewSuccessReceipt(ingestionID, payloadHash string, view GraphView, storeType string, createdAt time.Time) (IngestionReceipt, error) {
	if strings.TrimSpace(payloadHash) == "" {
		return IngestionReceipt{}, fmt.Errorf("ok receipt requires payloadHash")
	}
	if strings.TrimSpace(view.SnapshotHash) == "" {
		return IngestionReceipt{}, fmt.Errorf("ok receipt requires snapshotHash")
	}
	if strings.TrimSpace(ingestionID) == "" {
		return IngestionReceipt{}, fmt.Errorf("ok receipt requires ingestionId")
	}
	return IngestionReceipt{
		IngestionID:  ingestionID,
		OK:           true,
		PayloadHash:  payloadHash,
		SnapshotHash: view.SnapshotHash,
		NodeCount:    view.NodeCount,
		EdgeCount:    view.EdgeCount,
		StoreType:    storeType,
		CreatedAt:    createdAt,
	}, nil
}

// FailedReceipt builds a failed receipt.
func FailedReceipt(storeType string, why *Why) IngestionReceipt {
	return IngestionReceipt{
		Why:       why,
		StoreType: storeType,
		CreatedAt: time.Now().UTC(),
	}
}
