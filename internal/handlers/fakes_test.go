package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/jfalcone/media-transcode-pipeline/internal/adapter"
	"github.com/jfalcone/media-transcode-pipeline/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

type rangedObject struct {
	data []byte
	meta adapter.ObjectMeta
}

// fakeStorage implements adapter.ObjectStorage for handler tests. Multipart
// uploads assemble into objects; ranged reads serve canned responses.
type fakeStorage struct {
	mu        sync.Mutex
	nextID    int
	parts     map[string][][]byte
	partKeys  map[string]string
	objects   map[string][]byte
	ranged    map[string]rangedObject
	aborted   int
	lastRange string
	rangeErr  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		parts:    make(map[string][][]byte),
		partKeys: make(map[string]string),
		objects:  make(map[string][]byte),
		ranged:   make(map[string]rangedObject),
	}
}

func (f *fakeStorage) CreateMultipartUpload(ctx context.Context, bucket, key, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	uploadID := fmt.Sprintf("upload-%d", f.nextID)
	f.parts[uploadID] = nil
	f.partKeys[uploadID] = key
	return uploadID, nil
}

func (f *fakeStorage) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, data io.Reader, size int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.parts[uploadID] = append(f.parts[uploadID], payload)
	return fmt.Sprintf("etag-%d", partNumber), nil
}

func (f *fakeStorage) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []adapter.CompletedPart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var buf bytes.Buffer
	for _, p := range f.parts[uploadID] {
		buf.Write(p)
	}
	f.objects[key] = buf.Bytes()
	delete(f.parts, uploadID)
	return nil
}

func (f *fakeStorage) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted++
	delete(f.parts, uploadID)
	return nil
}

func (f *fakeStorage) PutFile(ctx context.Context, bucket, key, filePath, contentType string) error {
	return nil
}

func (f *fakeStorage) GetFile(ctx context.Context, bucket, key, filePath string) error {
	return errors.New("not implemented")
}

func (f *fakeStorage) GetObjectRange(ctx context.Context, bucket, key, rangeHeader string) (io.ReadCloser, adapter.ObjectMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRange = rangeHeader
	if f.rangeErr != nil {
		return nil, adapter.ObjectMeta{}, f.rangeErr
	}
	obj, ok := f.ranged[key]
	if !ok {
		return nil, adapter.ObjectMeta{}, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.meta, nil
}

// fakeQueue records published payloads.
type fakeQueue struct {
	mu         sync.Mutex
	published  [][]byte
	queues     []string
	publishErr error
}

func (f *fakeQueue) Publish(ctx context.Context, queue string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.queues = append(f.queues, queue)
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeQueue) Consume(ctx context.Context, queue string) (<-chan amqp.Delivery, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeQueue) Close() error { return nil }

// fakeContentStore holds assets in memory.
type fakeContentStore struct {
	mu         sync.Mutex
	assets     map[string]*domain.ContentAsset
	videoKeys  map[string]string
	thumbKeys  map[string]string
}

func newFakeContentStore(assets ...*domain.ContentAsset) *fakeContentStore {
	store := &fakeContentStore{
		assets:    make(map[string]*domain.ContentAsset),
		videoKeys: make(map[string]string),
		thumbKeys: make(map[string]string),
	}
	for _, asset := range assets {
		store.assets[asset.ID.String()] = asset
	}
	return store
}

func (f *fakeContentStore) Get(ctx context.Context, kind domain.ContentKind, id uuid.UUID) (*domain.ContentAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	asset, ok := f.assets[id.String()]
	if !ok || asset.Kind != kind {
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
	f.videoKeys[id.String()] = videoKey
	return nil
}

func (f *fakeContentStore) SetThumbnailKey(ctx context.Context, kind domain.ContentKind, id uuid.UUID, thumbnailKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.thumbKeys[id.String()] = thumbnailKey
	return nil
}

func (f *fakeContentStore) MarkReady(ctx context.Context, kind domain.ContentKind, id uuid.UUID, videoKey, subtitleKey string) error {
	return nil
}

func (f *fakeContentStore) MarkFailed(ctx context.Context, kind domain.ContentKind, id uuid.UUID) error {
	return nil
}

func (f *fakeContentStore) Close() error { return nil }

// fakeProgressCache serves a fixed percentage.
type fakeProgressCache struct {
	percent int
	getErr  error
}

func (f *fakeProgressCache) SetProgress(ctx context.Context, kind domain.ContentKind, id uuid.UUID, percent int) error {
	return nil
}

func (f *fakeProgressCache) GetProgress(ctx context.Context, kind domain.ContentKind, id uuid.UUID) (int, error) {
	if f.getErr != nil {
		return 0, f.getErr
	}
	return f.percent, nil
}

func (f *fakeProgressCache) Close() error { return nil }
