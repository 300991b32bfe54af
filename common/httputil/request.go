package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// DefaultMaxBodyBytes bounds request bodies decoded by DecodeJSON.
const DefaultMaxBodyBytes = 4 << 20

// DecodeJSON decodes the request body into v, rejecting bodies larger than
// maxBytes (DefaultMaxBodyBytes when maxBytes <= 0) and trailing garbage.
func DecodeJSON(r *http.Request, v interface{}, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	if r.Body == nil {
		return fmt.Errorf("empty body")
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("decode body: unexpected trailing data")
	}
	return nil
}

// GetClientIP returns the originating client address, honouring
// X-Forwarded-For and X-Real-IP. The port is stripped when present.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
