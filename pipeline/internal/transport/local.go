package transport

import (
	"context"
	"net/http"
	"sync"
)

// Handler receives a body delivered by LocalPoster.
type Handler func(ctx context.Context, body []byte) (int, error)

// LocalPoster delivers bodies to in-process handlers registered per
// endpoint. Unregistered endpoints answer 404.
type LocalPoster struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewLocalPoster constructs an empty LocalPoster.
func NewLocalPoster() *LocalPoster {
	return &LocalPoster{handlers: make(map[string]Handler)}
}

// Handle registers h for endpoint, replacing any previous handler.
func (p *LocalPoster) Handle(endpoint string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[endpoint] = h
}

func (p *LocalPoster) Post(ctx context.Context, endpoint string, body []byte) (int, error) {
	if p == nil {
		return 0, ErrNotReady
	}
	p.mu.RLock()
	h, ok := p.handlers[endpoint]
	p.mu.RUnlock()
	if !ok {
		return http.StatusNotFound, nil
	}
	return h(ctx, body)
}
