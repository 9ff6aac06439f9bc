package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"registrum/internal/identity/models"
	id "registrum/pkg/domain"
	"registrum/pkg/platform/sentinel"
)

// InMemoryStore stores persons in memory for tests/dev.
type InMemoryStore struct {
	mu      sync.RWMutex
	persons map[id.NationalID]*models.Person
}

// NewMemory constructs an empty in-memory person store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{persons: make(map[id.NationalID]*models.Person)}
}

func (s *InMemoryStore) Create(_ context.Context, person *models.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.persons[person.NationalID]; ok {
		return fmt.Errorf("person %s already registered: %w", person.NationalID, sentinel.ErrConflict)
	}
	clone := *person
	s.persons[person.NationalID] = &clone
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, nationalID id.NationalID) (*models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	person, ok := s.persons[nationalID]
	if !ok {
		return nil, fmt.Errorf("person %s not found: %w", nationalID, sentinel.ErrNotFound)
	}
	clone := *person
	return &clone, nil
}

func (s *InMemoryStore) Update(_ context.Context, person *models.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.persons[person.NationalID]; !ok {
		return fmt.Errorf("person %s not found: %w", person.NationalID, sentinel.ErrNotFound)
	}
	clone := *person
	s.persons[person.NationalID] = &clone
	return nil
}

// ListActivePensioners returns everyone alive with an active pension, in
// national ID order for deterministic scheduling sweeps.
func (s *InMemoryStore) ListActivePensioners(_ context.Context) ([]*models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Person
	for _, person := range s.persons {
		if person.Status == models.StatusAlive && person.Pension.Active {
			clone := *person
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NationalID < out[j].NationalID })
	return out, nil
}
