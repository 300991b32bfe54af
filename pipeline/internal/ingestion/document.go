package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
)

// Document is the JSON persisted for each ingestion record. It keeps the
// envelope fields so a stored record can be replayed as an envelope.
type Document struct {
	IngestionID string            `json:"ingestionId"`
	Kafka       *models.KafkaMeta `json:"kafka,omitempty"`
	Payload     *models.Payload   `json:"payload,omitempty"`
	GraphView   *models.GraphView `json:"graphView"`
}

// NewDocument builds the stored document for an anchored envelope.
func NewDocument(env *models.EventEnvelope, view models.GraphView) Document {
	doc := Document{GraphView: &view}
	if env != nil {
		c := env.Clone()
		doc.IngestionID = c.IngestionID
		doc.Kafka = c.Kafka
		doc.Payload = c.Payload
	}
	return doc
}

// Marshal encodes the document.
func (d Document) Marshal() ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal ingestion document: %w", err)
	}
	return b, nil
}
