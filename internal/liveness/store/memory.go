package store

import (
	"context"
	"sort"
	"sync"

	"registrum/internal/liveness/models"
	id "registrum/pkg/domain"
	"registrum/pkg/platform/sentinel"
)

// InMemoryStore holds live sessions and the per-subject history of completed
// ones. CreateActive is the atomicity point for the one-active-session rule.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[id.SessionID]*models.Session
	active   map[id.NationalID]id.SessionID
	history  map[id.NationalID][]*models.Session
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[id.SessionID]*models.Session),
		active:   make(map[id.NationalID]id.SessionID),
		history:  make(map[id.NationalID][]*models.Session),
	}
}

// CreateActive stores a new session unless the subject already has a live
// one. Check and insert happen under one lock so concurrent opens cannot
// both win.
func (s *InMemoryStore) CreateActive(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.active[session.SubjectID]; exists {
		return sentinel.ErrConflict
	}
	clone := *session
	s.sessions[session.ID] = &clone
	s.active[session.SubjectID] = session.ID
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *session
	return &clone, nil
}

// Update persists session state. Terminal sessions move from the active set
// into the subject's history.
func (s *InMemoryStore) Update(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return sentinel.ErrNotFound
	}
	clone := *session
	s.sessions[session.ID] = &clone
	if session.State.Terminal() {
		if activeID, ok := s.active[session.SubjectID]; ok && activeID == session.ID {
			delete(s.active, session.SubjectID)
		}
		archived := clone
		s.history[session.SubjectID] = append(s.history[session.SubjectID], &archived)
	}
	return nil
}

// ListActive returns non-terminal sessions, oldest first, for the expiry
// sweeper.
func (s *InMemoryStore) ListActive(_ context.Context) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Session, 0, len(s.active))
	for _, sessionID := range s.active {
		clone := *s.sessions[sessionID]
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// History returns the subject's completed sessions in completion order.
func (s *InMemoryStore) History(_ context.Context, subject id.NationalID) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.history[subject]
	out := make([]*models.Session, 0, len(entries))
	for _, entry := range entries {
		clone := *entry
		out = append(out, &clone)
	}
	return out, nil
}
