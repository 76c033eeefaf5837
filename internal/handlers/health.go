package handlers

import (
	"net/http"
	"runtime"
	"time"

	"media-cache/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// CacheSummary reports tier occupancy.
type CacheSummary struct {
	PoolMetadata     int   `json:"poolMetadata"`
	PoolDescriptors  int   `json:"poolDescriptors"`
	VaultDescriptors int   `json:"vaultDescriptors"`
	ImageCacheBytes  int64 `json:"imageCacheBytes"`
	PipelineInFlight int   `json:"pipelineInFlight"`
}

// HealthResponse contains the health check response
type HealthResponse struct {
	Status            string `json:"status"`
	Ready             bool   `json:"ready"`
	Version           string `json:"version"`
	Uptime            string `json:"uptime"`
	Indexing          bool   `json:"indexing"`
	LastIndexed       string `json:"lastIndexed,omitempty"`
	AssetsIndexed     int    `json:"assetsIndexed"`
	InitialIndexError string `json:"initialIndexError,omitempty"`

	Cache CacheSummary `json:"cache"`

	GoVersion    string `json:"goVersion"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:       statusHealthy,
		Ready:        true,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Truncate(time.Second).String(),
		Cache:        h.cacheSummary(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if h.indexer != nil {
		status := h.indexer.GetHealthStatus()
		response.Ready = status.Ready
		response.Indexing = status.Indexing
		response.AssetsIndexed = status.AssetsIndexed
		if !status.LastIndexed.IsZero() {
			response.LastIndexed = status.LastIndexed.Format(time.RFC3339)
		}
		if !status.Ready {
			response.Status = statusStarting
		}
		if status.InitialIndexError != "" {
			response.InitialIndexError = status.InitialIndexError
			response.Status = statusDegraded
		}
	}

	w.Header().Set("Content-Type", "application/json")
	// Caches serve from the vault while the first scan runs, so only a
	// missing scan result is unavailable.
	if !response.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	writeJSON(w, response)
}

func (h *Handlers) cacheSummary() CacheSummary {
	var s CacheSummary
	if h.coordinator != nil {
		s.PoolMetadata, s.PoolDescriptors = h.coordinator.Pool().Len()
		s.VaultDescriptors = h.coordinator.Vault().Len()
	}
	if h.imageCache != nil {
		s.ImageCacheBytes = h.imageCache.Usage()
	}
	if h.pipeline != nil {
		s.PipelineInFlight = h.pipeline.InFlight()
	}
	return s
}

// LivenessCheck is a simple liveness check (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 once the first library scan has finished.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.indexer != nil && !h.indexer.IsReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, map[string]string{"status": "ready"})
}
