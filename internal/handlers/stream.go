package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jfalcone/media-transcode-pipeline/internal/metrics"
)

// StreamContent proxies the stored video to the client with byte-range
// support. The Range header passes through to the object store verbatim;
// the store's response decides whether the result is partial. The body is
// relayed as a stream, so memory use is independent of object size.
func (h *V1Handler) StreamContent(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.contentFromPath(w, r)
	if !ok {
		return
	}
	if asset.VideoKey == "" {
		metrics.StreamRequests.WithLabelValues("404").Inc()
		http.Error(w, "Content not found", http.StatusNotFound)
		return
	}

	body, meta, err := h.Storage.GetObjectRange(r.Context(), h.Cfg.MediaBucket, asset.VideoKey, r.Header.Get("Range"))
	if err != nil {
		// Storage errors, not-found included, collapse to 404 so no
		// backend detail leaks to playback clients.
		slog.Error("Object read failed", "key", asset.VideoKey, "err", err)
		metrics.StreamRequests.WithLabelValues("404").Inc()
		http.Error(w, "Content not found", http.StatusNotFound)
		return
	}
	defer body.Close()

	contentType := meta.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}
	w.Header().Set("Content-Type", contentType)
	if meta.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.ContentLength, 10))
	}
	if meta.ETag != "" {
		w.Header().Set("ETag", meta.ETag)
	}

	if meta.ContentRange != "" {
		w.Header().Set("Content-Range", meta.ContentRange)
		w.WriteHeader(http.StatusPartialContent)
		metrics.StreamRequests.WithLabelValues("206").Inc()
	} else {
		w.Header().Set("Accept-Ranges", "bytes")
		w.WriteHeader(http.StatusOK)
		metrics.StreamRequests.WithLabelValues("200").Inc()
	}

	if _, err := io.Copy(w, body); err != nil {
		slog.Debug("Stream copy interrupted", "key", asset.VideoKey, "err", err)
	}
}
