package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/jfalcone/media-transcode-pipeline/internal/adapter"
	"github.com/jfalcone/media-transcode-pipeline/internal/config"
	"github.com/jfalcone/media-transcode-pipeline/internal/domain"
)

// IngestWatcher watches a local drop directory and feeds stable video files
// into the pipeline: a DRAFT content record, a streamed upload of the raw
// file, and a transcode job. It is the local-file flavor of ingest next to
// the HTTP multipart endpoints.
type IngestWatcher struct {
	watcher  *fsnotify.Watcher
	uploader *Uploader
	queue    adapter.JobQueue
	content  adapter.ContentStore
	cfg      config.PipelineConfig

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewIngestWatcher(uploader *Uploader, queue adapter.JobQueue, content adapter.ContentStore, cfg config.PipelineConfig) (*IngestWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(cfg.WatchDir); err != nil {
		watcher.Close()
		return nil, err
	}
	return &IngestWatcher{
		watcher:  watcher,
		uploader: uploader,
		queue:    queue,
		content:  content,
		cfg:      cfg,
		timers:   make(map[string]*time.Timer),
	}, nil
}

func isVideoFile(path string) bool {
	switch filepath.Ext(path) {
	case ".mp4", ".mkv", ".mov", ".avi", ".webm":
		return true
	}
	return false
}

// Run handles watcher events until the context is cancelled. Create and
// write events arm a debounce timer per file so a file is only ingested
// once it has stopped growing.
func (iw *IngestWatcher) Run(ctx context.Context) {
	slog.Info("Watching ingest directory", "path", iw.cfg.WatchDir)
	for {
		select {
		case event, ok := <-iw.watcher.Events:
			if !ok {
				return
			}
			switch event.Op {
			case fsnotify.Create, fsnotify.Write:
				if isVideoFile(event.Name) {
					iw.startOrResetTimer(ctx, event.Name)
				}
			default:
				slog.Debug("ignoring event", "action", event.Op, "path", event.Name)
			}
		case err, ok := <-iw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "err", err)
		case <-ctx.Done():
			slog.Info("Shutting down ingest watcher")
			return
		}
	}
}

// startOrResetTimer debounces file events: the ingest fires only after the
// file has been quiet for the configured interval.
func (iw *IngestWatcher) startOrResetTimer(ctx context.Context, path string) {
	iw.mu.Lock()
	defer iw.mu.Unlock()
	if timer, exists := iw.timers[path]; exists {
		timer.Stop()
	}
	iw.timers[path] = time.AfterFunc(iw.cfg.WatchQuiesce, func() {
		slog.Info("No updates, ingesting file", "quiesce", iw.cfg.WatchQuiesce.String(), "path", path)
		if err := iw.ingestFile(ctx, path); err != nil {
			slog.Error("Failed to ingest file", "path", path, "err", err)
		}
		iw.mu.Lock()
		delete(iw.timers, path)
		iw.mu.Unlock()
	})
}

func (iw *IngestWatcher) ingestFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		slog.Warn("Skipping empty file", "path", path)
		return nil
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "video/mp4"
	}

	id := uuid.New()
	asset := &domain.ContentAsset{ID: id, Kind: domain.KindMovie, Status: domain.StatusDraft}
	if err := iw.content.Create(ctx, asset); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	key := domain.RawVideoKey(asset.Kind, id, filepath.Base(path))
	if _, err := iw.uploader.Stream(ctx, iw.cfg.MediaBucket, key, contentType, file); err != nil {
		return err
	}
	if err := iw.content.SetVideoKey(ctx, asset.Kind, id, key); err != nil {
		return err
	}

	payload, err := json.Marshal(domain.TranscodeJob{
		ContentID:   id,
		ContentType: asset.Kind,
		S3Key:       key,
	})
	if err != nil {
		return err
	}
	if err := iw.queue.Publish(ctx, iw.cfg.QueueName, payload); err != nil {
		return err
	}
	slog.Info("Ingested local file", "path", path, "contentId", id, "key", key)

	if err := os.Remove(path); err != nil {
		slog.Warn("Failed to remove ingested file", "path", path, "err", err)
	}
	return nil
}

func (iw *IngestWatcher) Close() error {
	return iw.watcher.Close()
}
