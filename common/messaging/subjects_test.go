package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectForEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"/ingest/events", SubjectIngestEvents},
		{"/dlq/domain", SubjectDLQDomain},
		{"dlq/system/", SubjectDLQSystem},
		{"eventvault.dlq.system", SubjectDLQSystem},
		{"/", SubjectPrefix},
		{"", SubjectPrefix},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.want, SubjectForEndpoint(tt.endpoint))
		})
	}
}
