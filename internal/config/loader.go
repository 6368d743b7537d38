package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultQueueName      = "transcoding_tasks"
	defaultReconnectDelay = 2 * time.Second
	defaultWatchQuiesce   = 15 * time.Second
	defaultContentDBPath  = "content.db"
)

func LoadEnv() PipelineConfig {
	err := godotenv.Load()
	if err != nil {
		slog.Error("No .env file found or error loading .env file", "err", err)
	}
	mediaBucket := os.Getenv("S3_MEDIA_BUCKET")
	if mediaBucket == "" {
		slog.Error("S3_MEDIA_BUCKET is not set")
		os.Exit(1)
	}
	thumbnailBucket := os.Getenv("S3_THUMBNAIL_BUCKET")
	if thumbnailBucket == "" {
		slog.Error("S3_THUMBNAIL_BUCKET is not set")
		os.Exit(1)
	}
	queueName := os.Getenv("TRANSCODE_QUEUE")
	if queueName == "" {
		slog.Warn("TRANSCODE_QUEUE is not set, using default", "queue", defaultQueueName)
		queueName = defaultQueueName
	}
	tmpDir := os.Getenv("WORKER_TMP_DIR")
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	reconnectDelay := defaultReconnectDelay
	if v := os.Getenv("RECONNECT_DELAY_SEC"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			slog.Error("RECONNECT_DELAY_SEC is not a valid integer", "err", err)
			os.Exit(1)
		}
		reconnectDelay = time.Duration(seconds) * time.Second
	}
	watchQuiesce := defaultWatchQuiesce
	if v := os.Getenv("INGEST_WATCH_QUIESCE_SEC"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			slog.Error("INGEST_WATCH_QUIESCE_SEC is not a valid integer", "err", err)
			os.Exit(1)
		}
		watchQuiesce = time.Duration(seconds) * time.Second
	}
	contentDBPath := os.Getenv("CONTENT_DB_PATH")
	if contentDBPath == "" {
		slog.Warn("CONTENT_DB_PATH is not set, using default", "path", defaultContentDBPath)
		contentDBPath = defaultContentDBPath
	}
	return PipelineConfig{
		MediaBucket:     mediaBucket,
		ThumbnailBucket: thumbnailBucket,
		QueueName:       queueName,
		TmpDir:          tmpDir,
		WatchDir:        os.Getenv("INGEST_WATCH_DIR"),
		WatchQuiesce:    watchQuiesce,
		ReconnectDelay:  reconnectDelay,
		ContentDBPath:   contentDBPath,
	}
}
