// Package main implements the entry point for the media transcode pipeline.
// It runs the HTTP ingest/streaming API and the transcode worker in one
// process, integrating with S3, RabbitMQ, Redis, and Prometheus for metrics.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jfalcone/media-transcode-pipeline/internal/adapter"
	"github.com/jfalcone/media-transcode-pipeline/internal/config"
	"github.com/jfalcone/media-transcode-pipeline/internal/handlers"
	"github.com/jfalcone/media-transcode-pipeline/internal/middleware"
	"github.com/jfalcone/media-transcode-pipeline/internal/service"
	"github.com/minio/minio-go/v7"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ensureS3Bucket ensures the bucket exists, creating it if it does not.
// Exits the program on error.
func ensureS3Bucket(s3Client *adapter.S3ClientImpl, bucket string) {
	exists, err := s3Client.BucketExists(context.Background(), bucket)
	if err != nil {
		slog.Error("Failed to check if bucket exists", "bucket", bucket, "err", err)
		os.Exit(1)
	}
	if !exists {
		err := s3Client.MakeBucket(context.Background(), bucket, minio.MakeBucketOptions{
			Region: "eu-west-1",
		})
		if err != nil {
			slog.Error("Failed to create bucket", "bucket", bucket, "err", err)
			os.Exit(1)
		}
		slog.Info("Bucket created", "bucket", bucket)
	}
}

// runBackgroundTasks starts the transcode worker and, when configured, the
// local ingest watcher.
func runBackgroundTasks(ctx context.Context, worker *service.TranscodeWorker, ingestWatcher *service.IngestWatcher) {
	slog.Info("Running background: transcode worker")
	go worker.Run(ctx)

	if ingestWatcher != nil {
		slog.Info("Running background: ingest watcher")
		go ingestWatcher.Run(ctx)
	}
}

// setupHTTPServer configures the main HTTP server and starts the Prometheus
// metrics server on port 2112.
func setupHTTPServer(v1Handler *handlers.V1Handler) *http.Server {
	handlersRouter := handlers.NewRouter(v1Handler)
	wrappedHandler := middleware.RequestLogger(handlersRouter)
	go func() {
		slog.Info("Starting Prometheus metrics server on :2112/metrics")
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":2112", nil); err != nil {
			slog.Error("Prometheus metrics server error", "err", err)
		}
	}()

	return config.NewHTTPServer(wrappedHandler)
}

// gracefulShutdown shuts down the HTTP server and closes the external
// clients. Logs errors if shutdown fails.
func gracefulShutdown(server *http.Server, clients *config.AppClients) {
	slog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
	} else {
		slog.Info("Server exited gracefully")
	}

	if err := clients.QueueClient.Close(); err != nil {
		slog.Error("Failed to close RabbitMQ client", "err", err)
	}
	if err := clients.ProgressCache.Close(); err != nil {
		slog.Error("Failed to close Redis client", "err", err)
	}
	if err := clients.ContentStore.Close(); err != nil {
		slog.Error("Failed to close content store", "err", err)
	}
}

func main() {
	cfg := config.LoadEnv()

	clients := config.NewAppClients(cfg)

	ensureS3Bucket(clients.S3Client, cfg.MediaBucket)
	ensureS3Bucket(clients.S3Client, cfg.ThumbnailBucket)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	uploader := service.NewUploader(clients.S3Client)
	transcoder := service.NewFFmpegTranscoder()
	worker := service.NewTranscodeWorker(
		clients.QueueClient,
		clients.S3Client,
		uploader,
		transcoder,
		clients.ProgressCache,
		clients.ContentStore,
		cfg,
	)

	var ingestWatcher *service.IngestWatcher
	if cfg.WatchDir != "" {
		var err error
		ingestWatcher, err = service.NewIngestWatcher(uploader, clients.QueueClient, clients.ContentStore, cfg)
		if err != nil {
			slog.Error("Failed to create ingest watcher", "path", cfg.WatchDir, "err", err)
			os.Exit(1)
		}
		defer ingestWatcher.Close()
	}

	runBackgroundTasks(ctx, worker, ingestWatcher)

	v1Handler := &handlers.V1Handler{
		Uploader: uploader,
		Storage:  clients.S3Client,
		Queue:    clients.QueueClient,
		Content:  clients.ContentStore,
		Progress: clients.ProgressCache,
		Cfg:      cfg,
	}
	server := setupHTTPServer(v1Handler)

	// Channel to listen for interrupt or terminate signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("Starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "err", err)
		}
	}()

	<-quit
	cancel()
	gracefulShutdown(server, clients)
}
