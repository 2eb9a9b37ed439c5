package redisstore

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const rateKeyPrefix = "rate_limit:"

// RateCounter counts hits per key in fixed windows
type RateCounter struct {
	client *redis.Client
}

// NewRateCounter creates a new RateCounter
func NewRateCounter(client *redis.Client) *RateCounter {
	return &RateCounter{client: client}
}

// Hit increments the counter for key and returns the count in the current window
func (r *RateCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	key = rateKeyPrefix + key
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// the first hit opens the window
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}
