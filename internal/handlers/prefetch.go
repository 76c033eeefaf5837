package handlers

import (
	"encoding/json"
	"net/http"

	"media-cache/internal/media"
	"media-cache/internal/prefetch"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// PrefetchRequest asks for a prefetch plan over ids, in caller order.
type PrefetchRequest struct {
	Intent prefetch.Intent `json:"intent"`
	IDs    []string        `json:"ids"`
}

// PrefetchResponse describes the plan that was applied.
type PrefetchResponse struct {
	Intent   string     `json:"intent"`
	Tag      string     `json:"tag"`
	Priority string     `json:"priority"`
	Size     media.Size `json:"size"`
	IDs      []string   `json:"ids"`
}

// ImagePrefetchRequest asks the pipeline to pre-render ids at a size, or to
// stop doing so.
type ImagePrefetchRequest struct {
	IDs    []string `json:"ids"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Mode   string   `json:"mode"`
	Stop   bool     `json:"stop"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// PostPrefetch plans and applies a prefetch for an intent.
func (h *Handlers) PostPrefetch(w http.ResponseWriter, r *http.Request) {
	var req PrefetchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Intent.Kind.Valid() {
		writeJSONError(w, "unknown intent kind", http.StatusBadRequest)
		return
	}
	if len(req.IDs) > maxIDsPerRequest {
		writeJSONError(w, "too many ids", http.StatusBadRequest)
		return
	}

	plan := h.prefetcher.Prefetch(req.Intent, h.library.Resolve(req.IDs))

	ids := make([]string, len(plan.Assets))
	for i, a := range plan.Assets {
		ids[i] = a.ID
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, PrefetchResponse{
		Intent:   plan.Intent.String(),
		Tag:      string(plan.Tag),
		Priority: string(plan.Priority),
		Size:     plan.Size,
		IDs:      ids,
	})
}

// GetPrefetchEvents returns the prefetch event log, oldest first.
func (h *Handlers) GetPrefetchEvents(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string][]string{"events": h.prefetcher.Events()})
}

// PostImagePrefetch hands a batch to the library's caching manager through
// the pipeline.
func (h *Handlers) PostImagePrefetch(w http.ResponseWriter, r *http.Request) {
	var req ImagePrefetchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Width <= 0 || req.Height <= 0 || req.Width > maxImageEdge || req.Height > maxImageEdge {
		writeJSONError(w, "width and height must be between 1 and 8192", http.StatusBadRequest)
		return
	}
	if len(req.IDs) > maxIDsPerRequest {
		writeJSONError(w, "too many ids", http.StatusBadRequest)
		return
	}

	assets := h.library.Resolve(req.IDs)
	size := media.Size{Width: req.Width, Height: req.Height}
	mode := media.ParseContentMode(req.Mode)
	if req.Stop {
		h.pipeline.StopPrefetching(assets, size, mode)
		writeJSONStatus(w, "stopped")
		return
	}
	h.pipeline.Prefetch(assets, size, mode)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"status": "started"})
}
