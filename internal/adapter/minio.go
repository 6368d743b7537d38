package adapter

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// CompletedPart records one uploaded part of a multipart upload.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// ObjectMeta carries the response metadata of a (possibly ranged) object
// read. ContentRange is empty when the store served the full object.
type ObjectMeta struct {
	ContentType   string
	ContentLength int64
	ContentRange  string
	ETag          string
}

// ObjectStorage exposes the object-store primitives the pipeline needs.
// Every operation takes an explicit bucket so a single client can serve the
// media and thumbnail buckets without shared mutable configuration.
type ObjectStorage interface {
	CreateMultipartUpload(ctx context.Context, bucket, key, contentType string) (string, error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, data io.Reader, size int64) (string, error)
	CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) error
	AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error
	PutFile(ctx context.Context, bucket, key, filePath, contentType string) error
	GetFile(ctx context.Context, bucket, key, filePath string) error
	GetObjectRange(ctx context.Context, bucket, key, rangeHeader string) (io.ReadCloser, ObjectMeta, error)
}

type S3ClientImpl struct {
	core *minio.Core
}

func NewMinioClient() *S3ClientImpl {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:9000"
	}
	useSSL := false
	if strings.ToLower(os.Getenv("MINIO_USE_SSL")) == "true" {
		useSSL = true
	}
	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	if accessKey == "" {
		slog.Error("MINIO_ACCESS_KEY is not set")
		os.Exit(1)
	}
	secretKey := os.Getenv("MINIO_SECRET_KEY")
	if secretKey == "" {
		slog.Error("MINIO_SECRET_KEY is not set")
		os.Exit(1)
	}
	core, err := minio.NewCore(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		slog.Error("Failed to create MinIO client", "err", err)
		os.Exit(1)
	}
	return &S3ClientImpl{core: core}
}

func (s *S3ClientImpl) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return s.core.Client.BucketExists(ctx, bucketName)
}

func (s *S3ClientImpl) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return s.core.Client.MakeBucket(ctx, bucketName, opts)
}

func (s *S3ClientImpl) CreateMultipartUpload(ctx context.Context, bucket, key, contentType string) (string, error) {
	return s.core.NewMultipartUpload(ctx, bucket, key, minio.PutObjectOptions{
		ContentType: contentType,
	})
}

func (s *S3ClientImpl) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, data io.Reader, size int64) (string, error) {
	part, err := s.core.PutObjectPart(ctx, bucket, key, uploadID, partNumber, data, size, minio.PutObjectPartOptions{})
	if err != nil {
		return "", err
	}
	return part.ETag, nil
}

func (s *S3ClientImpl) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) error {
	completed := make([]minio.CompletePart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, minio.CompletePart{
			PartNumber: p.PartNumber,
			ETag:       p.ETag,
		})
	}
	_, err := s.core.CompleteMultipartUpload(ctx, bucket, key, uploadID, completed, minio.PutObjectOptions{})
	return err
}

func (s *S3ClientImpl) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	return s.core.AbortMultipartUpload(ctx, bucket, key, uploadID)
}

func (s *S3ClientImpl) PutFile(ctx context.Context, bucket, key, filePath, contentType string) error {
	_, err := s.core.Client.FPutObject(ctx, bucket, key, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (s *S3ClientImpl) GetFile(ctx context.Context, bucket, key, filePath string) error {
	return s.core.Client.FGetObject(ctx, bucket, key, filePath, minio.GetObjectOptions{})
}

// GetObjectRange reads an object, passing the client's Range header through
// verbatim when present. The store's response headers decide whether the
// read is partial.
func (s *S3ClientImpl) GetObjectRange(ctx context.Context, bucket, key, rangeHeader string) (io.ReadCloser, ObjectMeta, error) {
	opts := minio.GetObjectOptions{}
	if rangeHeader != "" {
		opts.Set("Range", rangeHeader)
	}
	body, info, header, err := s.core.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, ObjectMeta{}, err
	}
	meta := ObjectMeta{
		ContentType:  info.ContentType,
		ContentRange: header.Get("Content-Range"),
		ETag:         info.ETag,
	}
	if cl := header.Get("Content-Length"); cl != "" {
		if n, perr := strconv.ParseInt(cl, 10, 64); perr == nil {
			meta.ContentLength = n
		}
	} else {
		meta.ContentLength = info.Size
	}
	return body, meta, nil
}
