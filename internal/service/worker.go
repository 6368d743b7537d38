package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jfalcone/media-transcode-pipeline/internal/adapter"
	"github.com/jfalcone/media-transcode-pipeline/internal/config"
	"github.com/jfalcone/media-transcode-pipeline/internal/domain"
	"github.com/jfalcone/media-transcode-pipeline/internal/metrics"
	"github.com/jfalcone/media-transcode-pipeline/internal/service/utils"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	uploadMaxAttempts   = 3
	uploadInitialDelay  = 500 * time.Millisecond
	defaultSourceSuffix = ".bin"
)

// errSourceDownload marks a failure that happened before the job touched
// anything. The delivery is nacked with requeue so the broker redelivers it.
var errSourceDownload = errors.New("source download failed")

// consumerState drives the outer reconnect loop of the worker.
type consumerState int

const (
	stateConnecting consumerState = iota
	stateConsuming
	stateBackoff
)

// TranscodeWorker consumes transcode jobs one at a time and drives each
// through download, transcode, upload and persist.
type TranscodeWorker struct {
	queue      adapter.JobQueue
	storage    adapter.ObjectStorage
	uploader   *Uploader
	transcoder Transcoder
	progress   adapter.ProgressCache
	content    adapter.ContentStore
	cfg        config.PipelineConfig
}

func NewTranscodeWorker(
	queue adapter.JobQueue,
	storage adapter.ObjectStorage,
	uploader *Uploader,
	transcoder Transcoder,
	progress adapter.ProgressCache,
	content adapter.ContentStore,
	cfg config.PipelineConfig,
) *TranscodeWorker {
	return &TranscodeWorker{
		queue:      queue,
		storage:    storage,
		uploader:   uploader,
		transcoder: transcoder,
		progress:   progress,
		content:    content,
		cfg:        cfg,
	}
}

// Run is the worker's long-lived consumer loop. Queue-setup failures and
// delivery-stream closure move it through Backoff and back to Connecting
// indefinitely; only ctx cancellation stops it.
func (w *TranscodeWorker) Run(ctx context.Context) {
	slog.Info("Starting transcode worker", "queue", w.cfg.QueueName)
	state := stateConnecting
	var deliveries <-chan amqp.Delivery

	for {
		if ctx.Err() != nil {
			slog.Info("Transcode worker stopped")
			return
		}
		switch state {
		case stateConnecting:
			d, err := w.queue.Consume(ctx, w.cfg.QueueName)
			if err != nil {
				slog.Error("Failed to start consuming", "queue", w.cfg.QueueName, "err", err)
				state = stateBackoff
				continue
			}
			slog.Info("Transcode worker listening", "queue", w.cfg.QueueName)
			deliveries = d
			state = stateConsuming
		case stateConsuming:
			state = w.consume(ctx, deliveries)
		case stateBackoff:
			select {
			case <-ctx.Done():
			case <-time.After(w.cfg.ReconnectDelay):
			}
			state = stateConnecting
		}
	}
}

// consume processes deliveries until the stream closes (broker disconnect)
// or the context is cancelled, then hands control back to the outer loop.
func (w *TranscodeWorker) consume(ctx context.Context, deliveries <-chan amqp.Delivery) consumerState {
	for {
		select {
		case <-ctx.Done():
			return stateBackoff
		case delivery, ok := <-deliveries:
			if !ok {
				slog.Warn("Delivery stream closed, reconnecting", "queue", w.cfg.QueueName)
				return stateBackoff
			}
			w.handleDelivery(ctx, delivery)
		}
	}
}

// handleDelivery runs one job and settles its delivery. Malformed payloads
// and job-logic failures are acked so a poison message cannot block the
// queue; only a failed source download nacks the delivery back to the
// broker for redelivery.
func (w *TranscodeWorker) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	var job domain.TranscodeJob
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		slog.Error("Failed to parse job payload, discarding", "err", err)
		metrics.JobsMalformed.Inc()
		w.ack(delivery)
		return
	}
	metrics.JobsReceived.WithLabelValues(string(job.ContentType)).Inc()
	slog.Info("Received transcoding job", "contentId", job.ContentID, "contentType", job.ContentType, "key", job.S3Key)

	err := w.processJob(ctx, job)
	if err == nil {
		metrics.JobsSucceeded.WithLabelValues(string(job.ContentType)).Inc()
		slog.Info("Job completed successfully", "contentId", job.ContentID)
		w.ack(delivery)
		return
	}

	if errors.Is(err, errSourceDownload) {
		// Nothing has been written yet; requeue so the broker
		// redelivers. Leaving the delivery merely unacked would park it
		// until this channel closes.
		slog.Error("Source download failed, requeueing job", "contentId", job.ContentID, "err", err)
		if nerr := delivery.Nack(false, true); nerr != nil {
			slog.Error("Failed to nack delivery", "err", nerr)
		}
		return
	}

	metrics.JobsFailed.WithLabelValues(string(job.ContentType)).Inc()
	slog.Error("Failed to process job", "contentId", job.ContentID, "err", err)
	if merr := w.content.MarkFailed(ctx, job.ContentType, job.ContentID); merr != nil {
		slog.Error("Failed to mark content FAILED", "contentId", job.ContentID, "err", merr)
	}
	w.ack(delivery)
}

func (w *TranscodeWorker) ack(delivery amqp.Delivery) {
	if err := delivery.Ack(false); err != nil {
		slog.Error("Failed to ack delivery", "err", err)
	}
}

func (w *TranscodeWorker) processJob(ctx context.Context, job domain.TranscodeJob) error {
	suffix := filepath.Ext(job.S3Key)
	if suffix == "" {
		suffix = defaultSourceSuffix
	}
	inputPath := filepath.Join(w.cfg.TmpDir, fmt.Sprintf("%s_input%s", job.ContentID, suffix))
	outputPath := filepath.Join(w.cfg.TmpDir, fmt.Sprintf("%s_output.mp4", job.ContentID))
	subtitlePath := filepath.Join(w.cfg.TmpDir, fmt.Sprintf("%s_output.vtt", job.ContentID))
	defer removeAll(inputPath, outputPath, subtitlePath)

	if err := w.storage.GetFile(ctx, w.cfg.MediaBucket, job.S3Key, inputPath); err != nil {
		return fmt.Errorf("%w: %s: %v", errSourceDownload, job.S3Key, err)
	}

	w.setProgress(ctx, job, 0)

	duration, err := w.transcoder.ProbeDuration(ctx, inputPath)
	if err != nil {
		slog.Warn("Duration unavailable, progress reporting disabled", "contentId", job.ContentID, "err", err)
		duration = 0
	}

	started := time.Now()
	err = w.transcoder.Transcode(ctx, inputPath, outputPath, duration, func(percent int) {
		w.setProgress(ctx, job, percent)
	})
	if err != nil {
		return err
	}
	metrics.TranscodeDuration.WithLabelValues(string(job.ContentType)).Observe(time.Since(started).Seconds())

	hasSubtitle := false
	if w.transcoder.HasSubtitleStream(ctx, inputPath) {
		if serr := w.transcoder.ExtractSubtitle(ctx, inputPath, subtitlePath); serr != nil {
			slog.Warn("Subtitle extraction failed, shipping without subtitles", "contentId", job.ContentID, "err", serr)
		} else {
			hasSubtitle = true
		}
	}

	videoKey := domain.ProcessedKey(job.ContentID)
	err = utils.RetryErr(uploadMaxAttempts, uploadInitialDelay, func() error {
		return w.uploader.UploadFile(ctx, w.cfg.MediaBucket, videoKey, outputPath, "video/mp4")
	})
	if err != nil {
		return fmt.Errorf("upload transcoded output: %w", err)
	}

	subtitleKey := ""
	if hasSubtitle {
		subtitleKey = domain.SubtitleKey(job.ContentID)
		err = utils.RetryErr(uploadMaxAttempts, uploadInitialDelay, func() error {
			return w.storage.PutFile(ctx, w.cfg.MediaBucket, subtitleKey, subtitlePath, "text/vtt")
		})
		if err != nil {
			return fmt.Errorf("upload subtitle: %w", err)
		}
	}

	if err := w.content.MarkReady(ctx, job.ContentType, job.ContentID, videoKey, subtitleKey); err != nil {
		return fmt.Errorf("persist content state: %w", err)
	}

	w.setProgress(ctx, job, 100)
	return nil
}

// setProgress is best-effort: a cache outage degrades progress reporting,
// never the job.
func (w *TranscodeWorker) setProgress(ctx context.Context, job domain.TranscodeJob, percent int) {
	if err := w.progress.SetProgress(ctx, job.ContentType, job.ContentID, percent); err != nil {
		slog.Warn("Failed to update transcode progress", "contentId", job.ContentID, "err", err)
	}
}

func removeAll(paths ...string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove transient file", "path", path, "err", err)
		}
	}
}
