package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/telhawk-systems/eventvault/common/middleware"
)

// HTTPPoster posts JSON to a base URL.
type HTTPPoster struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPPoster constructs an HTTPPoster.
func NewHTTPPoster(baseURL string, timeout time.Duration) *HTTPPoster {
	return &HTTPPoster{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Post sends body to baseURL+endpoint.
func (p *HTTPPoster) Post(ctx context.Context, endpoint string, body []byte) (int, error) {
	if p == nil {
		return 0, ErrNotReady
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if id := middleware.GetRequestID(ctx); id != "" {
		request.Header.Set(middleware.HeaderRequestID, id)
	}

	resp, err := p.httpClient.Do(request)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
