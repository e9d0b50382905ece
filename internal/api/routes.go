package api

import (
	"net/http"

	"downlink/internal/health"
	"downlink/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Downloads     Downloads
	Queries       Queries
	Events        EventSource
	Settings      Settings
	Limiter       Limiter
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Downloads, cfg.Queries, cfg.Events, cfg.Settings, cfg.Limiter, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Download endpoints - auth required
	authMiddleware := AuthMiddleware(cfg.APIKey)
	protected := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(h)
	}

	mux.Handle("POST /v1/downloads", protected(handler.AddDownloads))
	mux.Handle("GET /v1/downloads", protected(handler.ListDownloads))
	mux.Handle("GET /v1/downloads/completed", protected(handler.ListCompleted))
	mux.Handle("POST /v1/downloads/clear-queued", protected(handler.ClearQueued))
	mux.Handle("POST /v1/downloads/clear-completed", protected(handler.ClearCompleted))
	mux.Handle("GET /v1/downloads/{id}", protected(handler.GetDownload))
	mux.Handle("DELETE /v1/downloads/{id}", protected(handler.DeleteDownload))
	mux.Handle("POST /v1/downloads/{id}/start", protected(handler.StartDownload))
	mux.Handle("POST /v1/downloads/{id}/stop", protected(handler.StopDownload))
	mux.Handle("POST /v1/downloads/{id}/cancel", protected(handler.CancelDownload))
	mux.Handle("POST /v1/downloads/{id}/retry", protected(handler.RetryDownload))
	mux.Handle("POST /v1/downloads/{id}/expand", protected(handler.ExpandPlaylist))
	mux.Handle("GET /v1/downloads/{id}/items", protected(handler.PlaylistItems))
	mux.Handle("GET /v1/downloads/{id}/logs", protected(handler.DownloadLogs))

	mux.Handle("GET /v1/stats", protected(handler.QueueStats))
	mux.Handle("GET /v1/presets", protected(handler.ListPresets))
	mux.Handle("GET /v1/settings", protected(handler.GetSettings))
	mux.Handle("PUT /v1/settings", protected(handler.UpdateSettings))
	mux.Handle("GET /v1/events", protected(http.HandlerFunc(handler.StreamEvents)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
