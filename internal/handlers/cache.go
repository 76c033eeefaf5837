package handlers

import (
	"net/http"

	"media-cache/internal/cache"
	"media-cache/internal/media"

	"github.com/gorilla/mux"
)

// MetadataResponse is returned by GetMetadata.
type MetadataResponse struct {
	Assets     []media.AssetMetadata       `json:"assets"`
	Thumbnails []cache.ThumbnailDescriptor `json:"thumbnails"`
}

// ReleaseTag drops a tagged cohort from the memory pool.
func (h *Handlers) ReleaseTag(w http.ResponseWriter, r *http.Request) {
	tag := mux.Vars(r)["tag"]
	if tag == "" {
		writeJSONError(w, "tag is required", http.StatusBadRequest)
		return
	}
	h.coordinator.Release(cache.Tag(tag))
	writeJSONStatus(w, "released")
}

// ClearCaches empties every cache tier: pool, thumbnail bytes, vault, the
// pipeline's memory tier and the image disk cache.
func (h *Handlers) ClearCaches(w http.ResponseWriter, _ *http.Request) {
	h.coordinator.ClearAll()
	if h.pipeline != nil {
		h.pipeline.Purge()
	}
	if h.imageCache != nil {
		h.imageCache.Clear()
	}
	log.Info("caches cleared via API")
	writeJSONStatus(w, "cleared")
}
