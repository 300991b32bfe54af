// Package transport provides the post capability used by the orchestrator
// and DLQ router to hand JSON documents to the downstream side.
package transport

import (
	"context"
	"errors"
)

// Endpoints understood by every backend.
const (
	EndpointIngest    = "/ingest/events"
	EndpointDLQDomain = "/dlq/domain"
	EndpointDLQSystem = "/dlq/system"
)

// ErrNotReady is returned when no backend has been configured.
var ErrNotReady = errors.New("transport not ready")

// Poster delivers body to endpoint and reports the resulting status code.
// A returned error means the call did not complete; a completed call with a
// non-2xx status is reported through the status code alone.
type Poster interface {
	Post(ctx context.Context, endpoint string, body []byte) (int, error)
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(ctx context.Context, endpoint string, body []byte) (int, error)

func (f PosterFunc) Post(ctx context.Context, endpoint string, body []byte) (int, error) {
	return f(ctx, endpoint, body)
}

// IsSuccess reports whether status is 2xx.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
