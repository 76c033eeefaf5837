package main

import (
	"net/http"

	"media-cache/internal/handlers"
	"media-cache/internal/middleware"

	"github.com/gorilla/mux"
)

func setupRouter(h *handlers.Handlers, metricsEnabled bool) *mux.Router {
	r := mux.NewRouter()
	// Router-level so the metrics middleware sees route templates.
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)
	if metricsEnabled {
		r.Handle("/metrics", h.MetricsHandler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/thumbnail/{id:.+}", h.GetThumbnail).Methods(http.MethodGet)
	api.HandleFunc("/image/prefetch", h.PostImagePrefetch).Methods(http.MethodPost)
	api.HandleFunc("/image/{id:.+}", h.GetImage).Methods(http.MethodGet)
	api.HandleFunc("/metadata", h.GetMetadata).Methods(http.MethodGet)
	api.HandleFunc("/prefetch", h.PostPrefetch).Methods(http.MethodPost)
	api.HandleFunc("/prefetch/events", h.GetPrefetchEvents).Methods(http.MethodGet)
	api.HandleFunc("/cache/release/{tag:.+}", h.ReleaseTag).Methods(http.MethodPost)
	api.HandleFunc("/cache/clear", h.ClearCaches).Methods(http.MethodPost)
	api.HandleFunc("/reindex", h.TriggerReindex).Methods(http.MethodPost)

	return r
}

// wrapMiddleware applies the outer middleware chain: compression outside
// request logging.
func wrapMiddleware(router http.Handler, logHealthChecks bool) http.Handler {
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = logHealthChecks
	logged := middleware.Logger(loggingConfig)(router)
	return middleware.Compression(middleware.DefaultCompressionConfig())(logged)
}
