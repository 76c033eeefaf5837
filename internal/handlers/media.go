package handlers

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"media-cache/internal/media"
	"media-cache/internal/pipeline"

	"github.com/disintegration/imaging"
	"github.com/gorilla/mux"
)

const (
	// maxImageEdge caps requested image dimensions.
	maxImageEdge = 8192
	imageQuality = 85
)

// resolveAsset looks up the {id} route variable, writing the error response
// itself when the asset is unknown.
func (h *Handlers) resolveAsset(w http.ResponseWriter, r *http.Request) (media.Asset, bool) {
	id := mux.Vars(r)["id"]
	if id == "" {
		writeJSONError(w, "asset id is required", http.StatusBadRequest)
		return media.Asset{}, false
	}
	assets := h.library.Resolve([]string{id})
	if len(assets) == 0 {
		writeJSONError(w, "asset not found", http.StatusNotFound)
		return media.Asset{}, false
	}
	return assets[0], true
}

// GetThumbnail serves encoded thumbnail bytes from the cache coordinator,
// generating them on a miss. Thumbnails are cached per asset, so the edge is
// the configured thumbnail size and is not selectable per request.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.resolveAsset(w, r)
	if !ok {
		return
	}

	data, ok := h.coordinator.ThumbnailData(r.Context(), asset, h.thumbSize)
	if !ok {
		log.Debug("thumbnail unavailable for %s", asset.ID)
		writeJSONError(w, "thumbnail unavailable", http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		log.Debug("thumbnail write for %s: %v", asset.ID, err)
	}
}

// GetImage renders an asset at ?w=&h= through the image pipeline. The request
// is cancelled when the client goes away.
func (h *Handlers) GetImage(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.resolveAsset(w, r)
	if !ok {
		return
	}

	width, okW := positiveInt(r, "w", 0, maxImageEdge)
	height, okH := positiveInt(r, "h", 0, maxImageEdge)
	if !okW || !okH || width == 0 || height == 0 {
		writeJSONError(w, "w and h must be between 1 and 8192", http.StatusBadRequest)
		return
	}
	mode := media.ParseContentMode(r.URL.Query().Get("mode"))

	ctx, cancel := context.WithTimeout(r.Context(), h.imageTimeout)
	defer cancel()

	done := make(chan pipeline.Result, 1)
	token := h.pipeline.RequestImage(asset, media.Size{Width: width, Height: height}, mode, func(res pipeline.Result) {
		done <- res
	})

	var res pipeline.Result
	select {
	case res = <-done:
	case <-ctx.Done():
		token.Cancel()
		if r.Context().Err() == nil {
			writeJSONError(w, "image render timed out", http.StatusGatewayTimeout)
		}
		return
	}

	if res.Image == nil {
		writeJSONError(w, "image unavailable", http.StatusUnprocessableEntity)
		return
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, res.Image, imaging.JPEG, imaging.JPEGQuality(imageQuality)); err != nil {
		log.Warn("encode image %s: %v", asset.ID, err)
		writeJSONError(w, "failed to encode image", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Image-Source", string(res.Source))
	if _, err := buf.WriteTo(w); err != nil {
		log.Debug("image write for %s: %v", asset.ID, err)
	}
}

// GetMetadata returns metadata and thumbnail descriptors for ?ids=. Unknown
// ids are omitted.
func (h *Handlers) GetMetadata(w http.ResponseWriter, r *http.Request) {
	ids := queryIDs(r)
	if len(ids) == 0 {
		writeJSONError(w, "ids is required", http.StatusBadRequest)
		return
	}
	if len(ids) > maxIDsPerRequest {
		writeJSONError(w, "too many ids", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, MetadataResponse{
		Assets:     h.coordinator.Metadata(r.Context(), ids),
		Thumbnails: h.coordinator.Thumbnails(ids),
	})
}

// TriggerReindex starts a background library scan.
func (h *Handlers) TriggerReindex(w http.ResponseWriter, _ *http.Request) {
	if h.indexer == nil {
		writeJSONError(w, "indexer not running", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if h.indexer.IsIndexing() {
		writeJSON(w, map[string]string{
			"status":  "already_running",
			"message": "Indexing is already in progress",
		})
		return
	}

	h.indexer.TriggerIndex()
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{
		"status":  "started",
		"message": "Re-indexing started",
	})
}
