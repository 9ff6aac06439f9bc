package store

import (
	"context"
	"sync"
	"time"

	"registrum/internal/effects/models"
	id "registrum/pkg/domain"
	"registrum/pkg/platform/sentinel"
)

// StatusStore keeps the per-record effect execution view queried by the API.
type StatusStore interface {
	Get(ctx context.Context, recordID id.RecordID) (*models.Status, error)
	Apply(ctx context.Context, recordID id.RecordID, subject id.NationalID, mutate func(status *models.Status)) error
}

// InMemoryStatusStore is the in-process status view.
type InMemoryStatusStore struct {
	mu       sync.RWMutex
	statuses map[id.RecordID]*models.Status
}

func NewMemoryStatuses() *InMemoryStatusStore {
	return &InMemoryStatusStore{statuses: make(map[id.RecordID]*models.Status)}
}

func (s *InMemoryStatusStore) Get(_ context.Context, recordID id.RecordID) (*models.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *status
	return &clone, nil
}

// Apply creates or updates the status row for a record under lock.
func (s *InMemoryStatusStore) Apply(_ context.Context, recordID id.RecordID, subject id.NationalID, mutate func(status *models.Status)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[recordID]
	if !ok {
		status = &models.Status{RecordID: recordID, SubjectID: subject}
		s.statuses[recordID] = status
	}
	mutate(status)
	status.UpdatedAt = time.Now()
	return nil
}
