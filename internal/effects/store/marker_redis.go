package store

import (
	"context"
	"fmt"

	platformredis "registrum/internal/platform/redis"

	"registrum/internal/effects/models"
	id "registrum/pkg/domain"
)

// RedisMarkerStore shares effect claims across replicas. Keys never expire:
// an effect for a record must run at most once, ever.
type RedisMarkerStore struct {
	client *platformredis.Client
}

func NewRedisMarkers(client *platformredis.Client) *RedisMarkerStore {
	return &RedisMarkerStore{client: client}
}

func (s *RedisMarkerStore) Claim(ctx context.Context, recordID id.RecordID, effect models.Effect) (bool, error) {
	claimed, err := s.client.SetNX(ctx, markerKey(recordID, effect), "1", 0).Result()
	if err != nil {
		return false, fmt.Errorf("claim effect marker: %w", err)
	}
	return claimed, nil
}
