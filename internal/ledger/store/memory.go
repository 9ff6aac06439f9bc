package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"registrum/internal/ledger/models"
	id "registrum/pkg/domain"
	"registrum/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested record does not exist
// - Return ErrConflict when a subject already has a blocking record
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures

// InMemoryStore stores death records in memory for tests/dev.
type InMemoryStore struct {
	mu        sync.RWMutex
	records   map[id.RecordID]*models.DeathRecord
	bySubject map[id.NationalID][]id.RecordID
}

// NewMemory constructs an empty in-memory death record store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{
		records:   make(map[id.RecordID]*models.DeathRecord),
		bySubject: make(map[id.NationalID][]id.RecordID),
	}
}

// Create inserts a record, enforcing that a subject can have at most one
// record that is not Rejected. The check and the insert happen under one
// lock so concurrent creates for the same subject cannot both succeed.
func (s *InMemoryStore) Create(_ context.Context, record *models.DeathRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rid := range s.bySubject[record.SubjectID] {
		existing := s.records[rid]
		if existing.Status != models.StatusRejected {
			return fmt.Errorf("subject %s already has record %s: %w",
				record.SubjectID, existing.ID, sentinel.ErrConflict)
		}
	}

	clone := cloneRecord(record)
	s.records[record.ID] = clone
	s.bySubject[record.SubjectID] = append(s.bySubject[record.SubjectID], record.ID)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, recordID id.RecordID) (*models.DeathRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[recordID]
	if !ok {
		return nil, fmt.Errorf("death record %s not found: %w", recordID, sentinel.ErrNotFound)
	}
	return cloneRecord(record), nil
}

func (s *InMemoryStore) FindBySubject(_ context.Context, subject id.NationalID) ([]*models.DeathRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DeathRecord
	for _, rid := range s.bySubject[subject] {
		out = append(out, cloneRecord(s.records[rid]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Update replaces the stored record. Attestation sets never shrink; the
// caller serializes updates per record.
func (s *InMemoryStore) Update(_ context.Context, record *models.DeathRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[record.ID]
	if !ok {
		return fmt.Errorf("death record %s not found: %w", record.ID, sentinel.ErrNotFound)
	}
	if len(record.Attestations) < len(existing.Attestations) {
		return fmt.Errorf("attestation set would shrink: %w", sentinel.ErrInvalidState)
	}
	s.records[record.ID] = cloneRecord(record)
	return nil
}

func (s *InMemoryStore) ListByStatus(_ context.Context, status models.RecordStatus) ([]*models.DeathRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DeathRecord
	for _, record := range s.records {
		if record.Status == status {
			out = append(out, cloneRecord(record))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneRecord(r *models.DeathRecord) *models.DeathRecord {
	clone := *r
	clone.Attestations = append([]models.Attestation(nil), r.Attestations...)
	if r.FinalizedAt != nil {
		at := *r.FinalizedAt
		clone.FinalizedAt = &at
	}
	return &clone
}
