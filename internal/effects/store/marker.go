package store

import (
	"context"
	"sync"

	"registrum/internal/effects/models"
	id "registrum/pkg/domain"
)

// MarkerStore is the idempotency gate for effect execution. Claim is atomic
// set-if-absent: whoever wins the claim runs the effect, everyone else skips.
// Claims are never released; a claimed-but-failed effect escalates to manual
// resolution instead of silently retrying on the next delivery.
type MarkerStore interface {
	Claim(ctx context.Context, recordID id.RecordID, effect models.Effect) (bool, error)
}

// InMemoryMarkerStore backs single-process deployments and tests.
type InMemoryMarkerStore struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func NewMemoryMarkers() *InMemoryMarkerStore {
	return &InMemoryMarkerStore{claimed: make(map[string]bool)}
}

func (s *InMemoryMarkerStore) Claim(_ context.Context, recordID id.RecordID, effect models.Effect) (bool, error) {
	key := markerKey(recordID, effect)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed[key] {
		return false, nil
	}
	s.claimed[key] = true
	return true, nil
}

func markerKey(recordID id.RecordID, effect models.Effect) string {
	return "effects:claim:" + recordID.String() + ":" + string(effect)
}
