package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jfalcone/media-transcode-pipeline/internal/adapter"
	"github.com/jfalcone/media-transcode-pipeline/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeStorage is an in-memory ObjectStorage. Multipart sessions accumulate
// parts until completed; objects land in completed keyed by object key.
type fakeStorage struct {
	mu        sync.Mutex
	nextID    int
	parts     map[string][][]byte
	completed map[string][]byte
	aborted   []string
	objects   map[string][]byte

	createErr   error
	partErr     error
	completeErr error
	putFileErr  error
	getFileErr  error

	createCalls int
	partCalls   int
	putCalls    int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		parts:     make(map[string][][]byte),
		completed: make(map[string][]byte),
		objects:   make(map[string][]byte),
	}
}

func (f *fakeStorage) CreateMultipartUpload(ctx context.Context, bucket, key, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	uploadID := fmt.Sprintf("upload-%d", f.nextID)
	f.parts[uploadID] = nil
	return uploadID, nil
}

func (f *fakeStorage) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, data io.Reader, size int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partCalls++
	if f.partErr != nil {
		return "", f.partErr
	}
	if _, ok := f.parts[uploadID]; !ok {
		return "", fmt.Errorf("unknown upload id %q", uploadID)
	}
	if partNumber != len(f.parts[uploadID])+1 {
		return "", fmt.Errorf("part number %d out of order", partNumber)
	}
	payload, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	if int64(len(payload)) != size {
		return "", fmt.Errorf("declared size %d, got %d bytes", size, len(payload))
	}
	f.parts[uploadID] = append(f.parts[uploadID], payload)
	return fmt.Sprintf("etag-%d", partNumber), nil
}

func (f *fakeStorage) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []adapter.CompletedPart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	stored, ok := f.parts[uploadID]
	if !ok {
		return fmt.Errorf("unknown upload id %q", uploadID)
	}
	if len(parts) != len(stored) {
		return fmt.Errorf("completed with %d parts, uploaded %d", len(parts), len(stored))
	}
	var buf bytes.Buffer
	for i, p := range parts {
		if p.PartNumber != i+1 {
			return fmt.Errorf("part list out of order at %d", p.PartNumber)
		}
		buf.Write(stored[i])
	}
	f.completed[key] = buf.Bytes()
	delete(f.parts, uploadID)
	return nil
}

func (f *fakeStorage) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.parts, uploadID)
	f.aborted = append(f.aborted, uploadID)
	return nil
}

func (f *fakeStorage) PutFile(ctx context.Context, bucket, key, filePath, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if f.putFileErr != nil {
		return f.putFileErr
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	f.completed[key] = data
	return nil
}

func (f *fakeStorage) GetFile(ctx context.Context, bucket, key, filePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getFileErr != nil {
		return f.getFileErr
	}
	data, ok := f.objects[key]
	if !ok {
		return fmt.Errorf("no such object %q", key)
	}
	return os.WriteFile(filePath, data, 0o644)
}

func (f *fakeStorage) GetObjectRange(ctx context.Context, bucket, key, rangeHeader string) (io.ReadCloser, adapter.ObjectMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.completed[key]
	if !ok {
		return nil, adapter.ObjectMeta{}, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), adapter.ObjectMeta{ContentLength: int64(len(data))}, nil
}

// fakeTranscoder substitutes the external binary. Transcode writes output
// and replays the configured progress sequence.
type fakeTranscoder struct {
	duration     time.Duration
	probeErr     error
	hasSubtitle  bool
	transcodeErr error
	extractErr   error
	progress     []int
	output       []byte
}

func (f *fakeTranscoder) ProbeDuration(ctx context.Context, inputPath string) (time.Duration, error) {
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	return f.duration, nil
}

func (f *fakeTranscoder) HasSubtitleStream(ctx context.Context, inputPath string) bool {
	return f.hasSubtitle
}

func (f *fakeTranscoder) Transcode(ctx context.Context, inputPath, outputPath string, duration time.Duration, onProgress func(int)) error {
	if f.transcodeErr != nil {
		return f.transcodeErr
	}
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("missing input: %w", err)
	}
	for _, p := range f.progress {
		if onProgress != nil {
			onProgress(p)
		}
	}
	return os.WriteFile(outputPath, f.output, 0o644)
}

func (f *fakeTranscoder) ExtractSubtitle(ctx context.Context, inputPath, outputPath string) error {
	if f.extractErr != nil {
		return f.extractErr
	}
	return os.WriteFile(outputPath, []byte("WEBVTT\n"), 0o644)
}

// fakeProgressCache records every write in order.
type fakeProgressCache struct {
	mu      sync.Mutex
	history []int
	setErr  error
}

func (f *fakeProgressCache) SetProgress(ctx context.Context, kind domain.ContentKind, id uuid.UUID, percent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.history = append(f.history, percent)
	return nil
}

func (f *fakeProgressCache) GetProgress(ctx context.Context, kind domain.ContentKind, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.history) == 0 {
		return 0, nil
	}
	return f.history[len(f.history)-1], nil
}

func (f *fakeProgressCache) Close() error { return nil }

// fakeContentStore records the worker's terminal writes.
type fakeContentStore struct {
	mu          sync.Mutex
	assets      map[string]*domain.ContentAsset
	readyVideo  string
	readySub    string
	readyCalls  int
	failedCalls int
}

func newFakeContentStore() *fakeContentStore {
	return &fakeContentStore{assets: make(map[string]*domain.ContentAsset)}
}

func (f *fakeContentStore) Get(ctx context.Context, kind domain.ContentKind, id uuid.UUID) (*domain.ContentAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	asset, ok := f.assets[id.String()]
	if !ok {
		return nil, adapter.ErrContentNotFound
	}
	return asset, nil
}

func (f *fakeContentStore) Create(ctx context.Context, asset *domain.ContentAsset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[asset.ID.String()] = asset
	return nil
}

func (f *fakeContentStore) SetVideoKey(ctx context.Context, kind domain.ContentKind, id uuid.UUID, videoKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if asset, ok := f.assets[id.String()]; ok {
		asset.VideoKey = videoKey
		asset.Status = domain.StatusProcessing
	}
	return nil
}

func (f *fakeContentStore) SetThumbnailKey(ctx context.Context, kind domain.ContentKind, id uuid.UUID, thumbnailKey string) error {
	return nil
}

func (f *fakeContentStore) MarkReady(ctx context.Context, kind domain.ContentKind, id uuid.UUID, videoKey, subtitleKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readyCalls++
	f.readyVideo = videoKey
	f.readySub = subtitleKey
	if asset, ok := f.assets[id.String()]; ok {
		asset.VideoKey = videoKey
		asset.SubtitleKey = subtitleKey
		asset.Status = domain.StatusReady
	}
	return nil
}

func (f *fakeContentStore) MarkFailed(ctx context.Context, kind domain.ContentKind, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedCalls++
	if asset, ok := f.assets[id.String()]; ok {
		asset.Status = domain.StatusFailed
	}
	return nil
}

func (f *fakeContentStore) Close() error { return nil }

// fakeQueue scripts Consume for worker-loop tests: the first consumeErrs
// calls fail, later calls each yield a fresh delivery channel that is also
// handed to the test on streams so it can drive and close it.
type fakeQueue struct {
	mu          sync.Mutex
	consumeErrs int
	calls       int
	streams     chan chan amqp.Delivery
}

func newFakeQueue(consumeErrs int) *fakeQueue {
	return &fakeQueue{
		consumeErrs: consumeErrs,
		streams:     make(chan chan amqp.Delivery, 8),
	}
}

func (f *fakeQueue) Publish(ctx context.Context, queue string, payload []byte) error {
	return nil
}

func (f *fakeQueue) Consume(ctx context.Context, queue string) (<-chan amqp.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.consumeErrs {
		return nil, errors.New("broker unavailable")
	}
	stream := make(chan amqp.Delivery)
	f.streams <- stream
	return stream, nil
}

func (f *fakeQueue) Close() error { return nil }

// fakeAcknowledger satisfies amqp.Acknowledger for hand-built deliveries.
type fakeAcknowledger struct {
	mu       sync.Mutex
	acks     int
	nacks    int
	requeues int
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks++
	if requeue {
		f.requeues++
	}
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}
