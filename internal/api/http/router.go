package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/histdb/histdb/internal/metrics"
)

// RouterConfig holds the router's collaborators.
type RouterConfig struct {
	// Pipeline accepts events for asynchronous persistence.
	Pipeline Enqueuer

	// Metrics serves the Prometheus exposition endpoint when non-nil.
	Metrics *metrics.Metrics

	// ShutdownMiddleware, when non-nil, rejects requests once draining
	// has begun. Supplied by the server package.
	ShutdownMiddleware func(http.Handler) http.Handler
}

// NewRouter builds the service's HTTP routing tree.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(ContentTypeMiddleware)

	h := NewEventsHandler(cfg.Pipeline)

	r.Group(func(r chi.Router) {
		if cfg.ShutdownMiddleware != nil {
			r.Use(cfg.ShutdownMiddleware)
		}
		r.Post("/chrome-events", h.HandleChromeEvent)
		r.Post("/emacs-events", h.HandleEmacsEvent)
	})

	r.Get("/healthz", HandleHealth)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	return r
}
