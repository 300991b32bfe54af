package transport

import (
	"context"
	"net/http"

	"github.com/telhawk-systems/eventvault/common/messaging"
	"github.com/telhawk-systems/eventvault/common/middleware"
)

// JetStreamPoster publishes bodies to the subject derived from the endpoint.
// A stream acknowledgement is reported as 202 Accepted.
type JetStreamPoster struct {
	publisher messaging.Publisher
}

// NewJetStreamPoster constructs a JetStreamPoster.
func NewJetStreamPoster(publisher messaging.Publisher) *JetStreamPoster {
	return &JetStreamPoster{publisher: publisher}
}

func (p *JetStreamPoster) Post(ctx context.Context, endpoint string, body []byte) (int, error) {
	if p == nil || p.publisher == nil {
		return 0, ErrNotReady
	}

	msg := &messaging.Message{
		Subject:  messaging.SubjectForEndpoint(endpoint),
		Data:     body,
		Metadata: map[string]string{},
	}
	if id := middleware.GetRequestID(ctx); id != "" {
		msg.Metadata[messaging.HeaderRequestID] = id
	}

	if err := p.publisher.PublishMsg(ctx, msg); err != nil {
		return 0, err
	}
	return http.StatusAccepted, nil
}
