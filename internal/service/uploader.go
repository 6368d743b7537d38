package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jfalcone/media-transcode-pipeline/internal/adapter"
	"github.com/jfalcone/media-transcode-pipeline/internal/metrics"
)

const (
	// partSizeThreshold is the buffered-byte count that triggers a part
	// flush. S3-compatible stores require 5 MiB minimum per non-final
	// part; 6 MiB keeps a safe margin.
	partSizeThreshold = 6 * 1024 * 1024

	// minMultipartSize is the store's minimum part size. Files below it
	// are uploaded with a single put instead of a multipart session.
	minMultipartSize = 5 * 1024 * 1024

	streamChunkSize = 64 * 1024
)

// ErrUnsupportedContentType rejects uploads outside the video/image
// allow-list before any storage call is made.
var ErrUnsupportedContentType = errors.New("unsupported content type")

// Uploader streams unbounded byte sequences into object storage part by
// part, never holding more than one part in memory.
type Uploader struct {
	storage adapter.ObjectStorage
}

func NewUploader(storage adapter.ObjectStorage) *Uploader {
	return &Uploader{storage: storage}
}

// UploadSession is the state of one in-flight multipart upload. It is owned
// by a single caller for its lifetime; there are no concurrent writers.
type UploadSession struct {
	storage    adapter.ObjectStorage
	bucket     string
	key        string
	uploadID   string
	parts      []adapter.CompletedPart
	partNumber int
	buffer     []byte
}

func allowedContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "video/") || strings.HasPrefix(contentType, "image/")
}

// Open validates the content type and initiates a multipart upload. No
// session exists if validation fails.
func (u *Uploader) Open(ctx context.Context, bucket, key, contentType string) (*UploadSession, error) {
	if !allowedContentType(contentType) {
		return nil, fmt.Errorf("%w: %q, only video/* and image/* allowed", ErrUnsupportedContentType, contentType)
	}
	uploadID, err := u.storage.CreateMultipartUpload(ctx, bucket, key, contentType)
	if err != nil {
		return nil, fmt.Errorf("initiate upload for %q: %w", key, err)
	}
	metrics.UploadsStarted.WithLabelValues(bucket).Inc()
	return &UploadSession{
		storage:    u.storage,
		bucket:     bucket,
		key:        key,
		uploadID:   uploadID,
		partNumber: 1,
		buffer:     make([]byte, 0, partSizeThreshold),
	}, nil
}

// Write appends a chunk to the session buffer, flushing a part whenever the
// buffer reaches the threshold.
func (s *UploadSession) Write(ctx context.Context, chunk []byte) error {
	s.buffer = append(s.buffer, chunk...)
	if len(s.buffer) >= partSizeThreshold {
		return s.flushPart(ctx)
	}
	return nil
}

func (s *UploadSession) flushPart(ctx context.Context) error {
	if len(s.buffer) == 0 {
		return nil
	}
	etag, err := s.storage.UploadPart(ctx, s.bucket, s.key, s.uploadID, s.partNumber, bytes.NewReader(s.buffer), int64(len(s.buffer)))
	if err != nil {
		return fmt.Errorf("upload part %d of %q: %w", s.partNumber, s.key, err)
	}
	s.parts = append(s.parts, adapter.CompletedPart{PartNumber: s.partNumber, ETag: etag})
	s.partNumber++
	s.buffer = s.buffer[:0]
	metrics.PartsUploaded.WithLabelValues(s.bucket).Inc()
	return nil
}

// Finish flushes any remaining buffered bytes as a short final part and
// completes the multipart upload. Returns the object key.
func (s *UploadSession) Finish(ctx context.Context) (string, error) {
	if err := s.flushPart(ctx); err != nil {
		return "", err
	}
	if err := s.storage.CompleteMultipartUpload(ctx, s.bucket, s.key, s.uploadID, s.parts); err != nil {
		return "", fmt.Errorf("complete upload of %q: %w", s.key, err)
	}
	return s.key, nil
}

// Abort discards the incomplete upload so the store reclaims the parts.
// Must be called on any mid-stream failure or the upload leaks storage.
func (s *UploadSession) Abort(ctx context.Context) error {
	metrics.UploadsAborted.WithLabelValues(s.bucket).Inc()
	if err := s.storage.AbortMultipartUpload(ctx, s.bucket, s.key, s.uploadID); err != nil {
		return fmt.Errorf("abort upload of %q: %w", s.key, err)
	}
	return nil
}

// Stream drains r into a multipart session, aborting on any read or write
// failure. Memory use is bounded by one part regardless of input size.
func (u *Uploader) Stream(ctx context.Context, bucket, key, contentType string, r io.Reader) (string, error) {
	session, err := u.Open(ctx, bucket, key, contentType)
	if err != nil {
		return "", err
	}
	buf := make([]byte, streamChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := session.Write(ctx, buf[:n]); werr != nil {
				u.abortSession(ctx, session)
				return "", werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			u.abortSession(ctx, session)
			return "", fmt.Errorf("read upload stream for %q: %w", key, err)
		}
	}
	finalKey, err := session.Finish(ctx)
	if err != nil {
		u.abortSession(ctx, session)
		return "", err
	}
	return finalKey, nil
}

func (u *Uploader) abortSession(ctx context.Context, session *UploadSession) {
	if err := session.Abort(ctx); err != nil {
		slog.Error("Failed to abort upload session", "key", session.key, "err", err)
	}
}

// UploadFile pushes a local file to the object store. Files below the
// store's minimum part size take a single-shot put with a known content
// length; larger files stream through a multipart session.
func (u *Uploader) UploadFile(ctx context.Context, bucket, key, filePath, contentType string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("stat %q: %w", filePath, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("file %q is empty", filePath)
	}
	if info.Size() < minMultipartSize {
		if err := u.storage.PutFile(ctx, bucket, key, filePath, contentType); err != nil {
			return fmt.Errorf("put %q: %w", key, err)
		}
		return nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open %q: %w", filePath, err)
	}
	defer file.Close()

	_, err = u.Stream(ctx, bucket, key, contentType, file)
	return err
}
