package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jfalcone/media-transcode-pipeline/internal/adapter"
	"github.com/jfalcone/media-transcode-pipeline/internal/config"
	"github.com/jfalcone/media-transcode-pipeline/internal/domain"
	"github.com/jfalcone/media-transcode-pipeline/internal/service"
)

type V1Handler struct {
	Uploader *service.Uploader
	Storage  adapter.ObjectStorage
	Queue    adapter.JobQueue
	Content  adapter.ContentStore
	Progress adapter.ProgressCache
	Cfg      config.PipelineConfig
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// contentFromPath resolves the {kind}/{id} path segments to an existing
// content record.
func (h *V1Handler) contentFromPath(w http.ResponseWriter, r *http.Request) (*domain.ContentAsset, bool) {
	kind, err := domain.ParseContentKind(r.PathValue("kind"))
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return nil, false
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid content id", http.StatusBadRequest)
		return nil, false
	}
	asset, err := h.Content.Get(r.Context(), kind, id)
	if err != nil {
		if errors.Is(err, adapter.ErrContentNotFound) {
			http.Error(w, "Content not found", http.StatusNotFound)
		} else {
			slog.Error("Content lookup failed", "id", id, "err", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return nil, false
	}
	return asset, true
}

// nextFormPart advances the multipart reader to the field with the given
// name, streaming past nothing: parts before it are drained lazily by the
// reader itself.
func nextFormPart(r *http.Request, field string) (*multipart.Part, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := reader.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == field {
			return part, nil
		}
	}
}

// UploadVideo ingests a multipart "video" field as an unbounded byte
// stream, records the raw key, and enqueues the transcode job.
func (h *V1Handler) UploadVideo(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.contentFromPath(w, r)
	if !ok {
		return
	}
	if !asset.Kind.HasVideo() {
		http.Error(w, "Content kind does not accept video uploads", http.StatusBadRequest)
		return
	}

	part, err := nextFormPart(r, "video")
	if err != nil {
		http.Error(w, "No video field found in multipart request", http.StatusBadRequest)
		return
	}
	defer part.Close()

	filename := part.FileName()
	if filename == "" {
		filename = "video.mp4"
	}
	contentType := part.Header.Get("Content-Type")
	key := domain.RawVideoKey(asset.Kind, asset.ID, filename)
	slog.Info("Starting video upload", "contentId", asset.ID, "filename", filename)

	// Stream aborts the multipart session on any failure, so a broken
	// client connection cannot leak an incomplete upload.
	finalKey, err := h.Uploader.Stream(r.Context(), h.Cfg.MediaBucket, key, contentType, part)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedContentType) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Video upload failed", "contentId", asset.ID, "err", err)
		http.Error(w, "Upload failed", http.StatusInternalServerError)
		return
	}

	if err := h.Content.SetVideoKey(r.Context(), asset.Kind, asset.ID, finalKey); err != nil {
		slog.Error("Failed to record video key", "contentId", asset.ID, "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(domain.TranscodeJob{
		ContentID:   asset.ID,
		ContentType: asset.Kind,
		S3Key:       finalKey,
	})
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err := h.Queue.Publish(r.Context(), h.Cfg.QueueName, payload); err != nil {
		slog.Error("Failed to enqueue transcode job", "contentId", asset.ID, "err", err)
		http.Error(w, "Failed to enqueue transcode job", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"key": finalKey})
}

// UploadThumbnail ingests a multipart "thumbnail" field into the thumbnail
// bucket. No transcode job is enqueued for thumbnails.
func (h *V1Handler) UploadThumbnail(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.contentFromPath(w, r)
	if !ok {
		return
	}

	part, err := nextFormPart(r, "thumbnail")
	if err != nil {
		http.Error(w, "No thumbnail field found in multipart request", http.StatusBadRequest)
		return
	}
	defer part.Close()

	ext := strings.TrimPrefix(filepath.Ext(part.FileName()), ".")
	if ext == "" {
		ext = "jpg"
	}
	contentType := part.Header.Get("Content-Type")
	key := domain.ThumbnailKey(asset.Kind, asset.ID, ext)

	finalKey, err := h.Uploader.Stream(r.Context(), h.Cfg.ThumbnailBucket, key, contentType, part)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedContentType) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Thumbnail upload failed", "contentId", asset.ID, "err", err)
		http.Error(w, "Upload failed", http.StatusInternalServerError)
		return
	}

	if err := h.Content.SetThumbnailKey(r.Context(), asset.Kind, asset.ID, finalKey); err != nil {
		slog.Error("Failed to record thumbnail key", "contentId", asset.ID, "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"key": finalKey})
}

// TranscodeProgress reports the cached progress percentage for a job,
// degrading missing or unavailable cache data to 0.
func (h *V1Handler) TranscodeProgress(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.contentFromPath(w, r)
	if !ok {
		return
	}
	percent, err := h.Progress.GetProgress(r.Context(), asset.Kind, asset.ID)
	if err != nil {
		slog.Warn("Progress lookup failed", "contentId", asset.ID, "err", err)
		percent = 0
	}
	writeJSON(w, http.StatusOK, map[string]int{"progress": percent})
}
