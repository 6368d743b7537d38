package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jfalcone/media-transcode-pipeline/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

// ErrContentNotFound is returned when no content record exists for an id.
var ErrContentNotFound = errors.New("content not found")

// ContentStore is the collaborator interface the pipeline consumes from the
// content layer: lookup before accepting an upload, and the worker's final
// key/status update.
type ContentStore interface {
	Get(ctx context.Context, kind domain.ContentKind, id uuid.UUID) (*domain.ContentAsset, error)
	Create(ctx context.Context, asset *domain.ContentAsset) error
	SetVideoKey(ctx context.Context, kind domain.ContentKind, id uuid.UUID, videoKey string) error
	SetThumbnailKey(ctx context.Context, kind domain.ContentKind, id uuid.UUID, thumbnailKey string) error
	MarkReady(ctx context.Context, kind domain.ContentKind, id uuid.UUID, videoKey, subtitleKey string) error
	MarkFailed(ctx context.Context, kind domain.ContentKind, id uuid.UUID) error
	Close() error
}

const contentSchema = `
CREATE TABLE IF NOT EXISTS content_assets (
	id            TEXT NOT NULL,
	kind          TEXT NOT NULL,
	video_key     TEXT NOT NULL DEFAULT '',
	subtitle_key  TEXT NOT NULL DEFAULT '',
	thumbnail_key TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'DRAFT',
	updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (id, kind)
);`

type SQLiteContentStore struct {
	db *sql.DB
}

func NewSQLiteContentStore(path string) (*SQLiteContentStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open content db: %w", err)
	}
	if _, err := db.Exec(contentSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply content schema: %w", err)
	}
	return &SQLiteContentStore{db: db}, nil
}

func (s *SQLiteContentStore) Get(ctx context.Context, kind domain.ContentKind, id uuid.UUID) (*domain.ContentAsset, error) {
	asset := domain.ContentAsset{ID: id, Kind: kind}
	err := s.db.QueryRowContext(ctx,
		`SELECT video_key, subtitle_key, thumbnail_key, status FROM content_assets WHERE id = ? AND kind = ?`,
		id.String(), string(kind),
	).Scan(&asset.VideoKey, &asset.SubtitleKey, &asset.ThumbnailKey, &asset.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrContentNotFound
		}
		return nil, err
	}
	return &asset, nil
}

func (s *SQLiteContentStore) Create(ctx context.Context, asset *domain.ContentAsset) error {
	if asset.Status == "" {
		asset.Status = domain.StatusDraft
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO content_assets (id, kind, video_key, subtitle_key, thumbnail_key, status) VALUES (?, ?, ?, ?, ?, ?)`,
		asset.ID.String(), string(asset.Kind), asset.VideoKey, asset.SubtitleKey, asset.ThumbnailKey, string(asset.Status),
	)
	return err
}

// SetVideoKey records the raw upload key and moves the record to PROCESSING.
func (s *SQLiteContentStore) SetVideoKey(ctx context.Context, kind domain.ContentKind, id uuid.UUID, videoKey string) error {
	return s.update(ctx, kind, id,
		`UPDATE content_assets SET video_key = ?, status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND kind = ?`,
		videoKey, string(domain.StatusProcessing), id.String(), string(kind))
}

func (s *SQLiteContentStore) SetThumbnailKey(ctx context.Context, kind domain.ContentKind, id uuid.UUID, thumbnailKey string) error {
	return s.update(ctx, kind, id,
		`UPDATE content_assets SET thumbnail_key = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND kind = ?`,
		thumbnailKey, id.String(), string(kind))
}

func (s *SQLiteContentStore) MarkReady(ctx context.Context, kind domain.ContentKind, id uuid.UUID, videoKey, subtitleKey string) error {
	return s.update(ctx, kind, id,
		`UPDATE content_assets SET video_key = ?, subtitle_key = ?, status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND kind = ?`,
		videoKey, subtitleKey, string(domain.StatusReady), id.String(), string(kind))
}

func (s *SQLiteContentStore) MarkFailed(ctx context.Context, kind domain.ContentKind, id uuid.UUID) error {
	return s.update(ctx, kind, id,
		`UPDATE content_assets SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND kind = ?`,
		string(domain.StatusFailed), id.String(), string(kind))
}

func (s *SQLiteContentStore) update(ctx context.Context, kind domain.ContentKind, id uuid.UUID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %s", ErrContentNotFound, kind, id)
	}
	return nil
}

func (s *SQLiteContentStore) Close() error {
	return s.db.Close()
}
