package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"registrum/internal/scheduler/models"
	id "registrum/pkg/domain"
	"registrum/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu        sync.RWMutex
	schedules map[id.NationalID]*models.Schedule
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{schedules: make(map[id.NationalID]*models.Schedule)}
}

func (s *InMemoryStore) Create(_ context.Context, schedule *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.schedules[schedule.SubjectID]; exists {
		return sentinel.ErrConflict
	}
	clone := *schedule
	s.schedules[schedule.SubjectID] = &clone
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, subject id.NationalID) (*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schedule, ok := s.schedules[subject]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *schedule
	return &clone, nil
}

func (s *InMemoryStore) Update(_ context.Context, schedule *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[schedule.SubjectID]; !ok {
		return sentinel.ErrNotFound
	}
	clone := *schedule
	s.schedules[schedule.SubjectID] = &clone
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, subject id.NationalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, subject)
	return nil
}

// ListDueBy returns schedules whose deadline falls on or before the given
// instant, oldest deadline first.
func (s *InMemoryStore) ListDueBy(_ context.Context, deadline time.Time) ([]*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Schedule, 0)
	for _, schedule := range s.schedules {
		if !schedule.NextDueAt.After(deadline) {
			clone := *schedule
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextDueAt.Before(out[j].NextDueAt) })
	return out, nil
}
