package redisstore

import (
	"context"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"github.com/go-redis/redis/v8"
)

const dedupKeyPrefix = "webhook:"

// DedupRepository implements repositories.WebhookDedupRepository on Redis
type DedupRepository struct {
	client *redis.Client
}

// NewDedupRepository creates a new DedupRepository
func NewDedupRepository(client *redis.Client) repositories.WebhookDedupRepository {
	return &DedupRepository{client: client}
}

// FirstSeen uses SETNX so only the first delivery of a key wins
func (r *DedupRepository) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, dedupKeyPrefix+key, "1", ttl).Result()
}

// Forget deletes the key so the next delivery wins again
func (r *DedupRepository) Forget(ctx context.Context, key string) error {
	return r.client.Del(ctx, dedupKeyPrefix+key).Err()
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
