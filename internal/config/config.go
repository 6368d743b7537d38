package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/jfalcone/media-transcode-pipeline/internal/adapter"
)

// PipelineConfig carries the application-level settings shared by the ingest
// handlers, the transcode worker, and the local ingest watcher.
type PipelineConfig struct {
	MediaBucket     string
	ThumbnailBucket string
	QueueName       string
	TmpDir          string
	WatchDir        string
	WatchQuiesce    time.Duration
	ReconnectDelay  time.Duration
	ContentDBPath   string
}

type AppClients struct {
	S3Client      *adapter.S3ClientImpl
	QueueClient   *adapter.RabbitMQClient
	ProgressCache *adapter.RedisProgressCache
	ContentStore  *adapter.SQLiteContentStore
}

func NewAppClients(cfg PipelineConfig) *AppClients {
	queueClient, err := adapter.NewRabbitMQClient()
	if err != nil {
		slog.Error("Failed to connect to RabbitMQ", "err", err)
		os.Exit(1)
	}
	contentStore, err := adapter.NewSQLiteContentStore(cfg.ContentDBPath)
	if err != nil {
		slog.Error("Failed to open content store", "err", err)
		os.Exit(1)
	}
	return &AppClients{
		S3Client:      adapter.NewMinioClient(),
		QueueClient:   queueClient,
		ProgressCache: adapter.NewRedisProgressCache(),
		ContentStore:  contentStore,
	}
}
