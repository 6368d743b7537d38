package adapter

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jfalcone/media-transcode-pipeline/internal/domain"
	redis "github.com/redis/go-redis/v9"
)

// progressTTL bounds the lifetime of progress entries so abandoned jobs do
// not accumulate in the cache.
const progressTTL = time.Hour

// ProgressCache stores ephemeral transcode progress, written by the active
// worker and polled by HTTP clients.
type ProgressCache interface {
	SetProgress(ctx context.Context, kind domain.ContentKind, id uuid.UUID, percent int) error
	GetProgress(ctx context.Context, kind domain.ContentKind, id uuid.UUID) (int, error)
	Close() error
}

type RedisProgressCache struct {
	redisClient *redis.Client
}

func NewRedisProgressCache() *RedisProgressCache {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	password := os.Getenv("REDIS_PASSWORD")
	dbStr := os.Getenv("REDIS_DB")
	db := 0
	if dbStr != "" {
		if parsed, err := strconv.Atoi(dbStr); err == nil {
			db = parsed
		}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		slog.Error("Failed to connect to Redis", "err", err)
	}

	return &RedisProgressCache{redisClient: client}
}

func (r *RedisProgressCache) SetProgress(ctx context.Context, kind domain.ContentKind, id uuid.UUID, percent int) error {
	return r.redisClient.Set(ctx, domain.ProgressKey(kind, id), percent, progressTTL).Err()
}

// GetProgress returns the cached percentage, degrading a missing entry to 0.
func (r *RedisProgressCache) GetProgress(ctx context.Context, kind domain.ContentKind, id uuid.UUID) (int, error) {
	percent, err := r.redisClient.Get(ctx, domain.ProgressKey(kind, id)).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return percent, nil
}

func (r *RedisProgressCache) Close() error {
	return r.redisClient.Close()
}
