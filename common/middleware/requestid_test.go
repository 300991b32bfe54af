package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name              string
		existingRequestID string
	}{
		{name: "generates new request ID when not present"},
		{name: "propagates existing request ID", existingRequestID: "existing-req-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = GetRequestID(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/ingestion", nil)
			if tt.existingRequestID != "" {
				req.Header.Set(HeaderRequestID, tt.existingRequestID)
			}
			w := httptest.NewRecorder()

			RequestID(handler).ServeHTTP(w, req)

			header := w.Header().Get(HeaderRequestID)
			require.NotEmpty(t, header)
			assert.Equal(t, header, captured)

			if tt.existingRequestID != "" {
				assert.Equal(t, tt.existingRequestID, captured)
			} else {
				_, err := uuid.Parse(captured)
				assert.NoError(t, err, "generated request ID should be a UUID")
			}
		})
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	assert.Equal(t, "", GetRequestID(context.Background()))
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "RPL-abc")
	assert.Equal(t, "RPL-abc", GetRequestID(ctx))
}
