package domain

import "github.com/google/uuid"

// TranscodeJob is the queue message describing one transcode task. The
// payload is immutable; it is produced by the ingest path and consumed by a
// worker, with at-least-once delivery semantics.
type TranscodeJob struct {
	ContentID   uuid.UUID   `json:"content_id"`
	ContentType ContentKind `json:"content_type"`
	S3Key       string      `json:"s3_key"`
}
