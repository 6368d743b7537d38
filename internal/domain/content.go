package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ContentKind identifies which kind of playable content a record refers to.
type ContentKind string

const (
	KindMovie   ContentKind = "movie"
	KindEpisode ContentKind = "episode"
	// KindSeries carries thumbnails only; series have no video of their own.
	KindSeries ContentKind = "series"
)

// ParseContentKind maps the plural path segment used in URLs and object keys
// to a ContentKind.
func ParseContentKind(segment string) (ContentKind, error) {
	switch segment {
	case "movies":
		return KindMovie, nil
	case "episodes":
		return KindEpisode, nil
	case "series":
		return KindSeries, nil
	}
	return "", fmt.Errorf("unknown content kind %q", segment)
}

// Plural returns the path segment used for this kind in URLs and object keys.
func (k ContentKind) Plural() string {
	if k == KindSeries {
		return string(k)
	}
	return string(k) + "s"
}

// HasVideo reports whether this kind of content carries a playable video.
func (k ContentKind) HasVideo() bool {
	return k == KindMovie || k == KindEpisode
}

type ContentStatus string

const (
	StatusDraft      ContentStatus = "DRAFT"
	StatusProcessing ContentStatus = "PROCESSING"
	StatusReady      ContentStatus = "READY"
	StatusFailed     ContentStatus = "FAILED"
)

// ContentAsset is the stored record for a single piece of content. The
// transcode worker is the only writer of the PROCESSING -> READY/FAILED
// transition and of the final video/subtitle keys.
type ContentAsset struct {
	ID           uuid.UUID
	Kind         ContentKind
	VideoKey     string
	SubtitleKey  string
	ThumbnailKey string
	Status       ContentStatus
}

// RawVideoKey is the object key for an uploaded master file,
// e.g. movies/{id}/master_{filename}.
func RawVideoKey(kind ContentKind, id uuid.UUID, filename string) string {
	return fmt.Sprintf("%s/%s/master_%s", kind.Plural(), id, filename)
}

// ProcessedKey is the object key for the transcoded delivery asset.
func ProcessedKey(id uuid.UUID) string {
	return fmt.Sprintf("processed/%s.mp4", id)
}

// SubtitleKey is the object key for an extracted subtitle track.
func SubtitleKey(id uuid.UUID) string {
	return fmt.Sprintf("subtitles/%s.vtt", id)
}

// ThumbnailKey is the object key for a content thumbnail, preserving the
// uploaded file extension.
func ThumbnailKey(kind ContentKind, id uuid.UUID, ext string) string {
	return fmt.Sprintf("%s/%s/thumbnail.%s", kind.Plural(), id, ext)
}

// ProgressKey is the cache key under which transcode progress is published.
func ProgressKey(kind ContentKind, id uuid.UUID) string {
	return fmt.Sprintf("transcode_progress:%s:%s", kind, id)
}
