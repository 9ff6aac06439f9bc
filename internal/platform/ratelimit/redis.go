package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	platformredis "registrum/internal/platform/redis"
)

// RedisStore is a fixed-window limiter shared across replicas. The window
// boundary leak of fixed windows is acceptable here; the limit exists to slow
// credential stuffing, not to meter usage precisely.
type RedisStore struct {
	client *platformredis.Client
}

func NewRedis(client *platformredis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	bucket := time.Now().Truncate(window)
	redisKey := fmt.Sprintf("ratelimit:%s:%s", key, strconv.FormatInt(bucket.Unix(), 10))

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("increment rate limit counter: %w", err)
	}
	if count == 1 {
		// First hit in this window owns the expiry.
		if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return nil, fmt.Errorf("set rate limit expiry: %w", err)
		}
	}

	resetAt := bucket.Add(window)
	if count > int64(limit) {
		return &Result{Allowed: false, Limit: limit, ResetAt: resetAt}, nil
	}
	return &Result{
		Allowed:   true,
		Remaining: limit - int(count),
		Limit:     limit,
		ResetAt:   resetAt,
	}, nil
}
