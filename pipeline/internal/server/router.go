package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/eventvault/common/middleware"
	"github.com/telhawk-systems/eventvault/pipeline/internal/handlers"
	"github.com/telhawk-systems/eventvault/pipeline/internal/replay"
	"github.com/telhawk-systems/eventvault/pipeline/internal/transport"
)

// NewRouter registers the pipeline API. Replay routes mirror the replay
// modes: /replay/time-window, /replay/ingestion, /replay/dlq/domain and
// /replay/dlq/system.
func NewRouter(h *handlers.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /ingestion", h.SubmitIngestion)

	mux.HandleFunc("POST /replay/time-window", h.Replay(replay.ModeTimeWindow))
	mux.HandleFunc("POST /replay/ingestion", h.Replay(replay.ModeIngestion))
	mux.HandleFunc("POST /replay/dlq/domain", h.Replay(replay.ModeDLQDomain))
	mux.HandleFunc("POST /replay/dlq/system", h.Replay(replay.ModeDLQSystem))

	mux.HandleFunc("GET /dlq/{kind}", h.ListDLQ)
	mux.HandleFunc("GET /dlq/{kind}/by-id", h.GetDLQ)

	// Transport-facing endpoints
	mux.HandleFunc("POST "+transport.EndpointIngest, h.ConsumeEvent)
	mux.HandleFunc("POST /dlq/{kind}", h.AcceptFailure)

	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /readyz", h.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
