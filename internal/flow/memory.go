package flow

import (
	"context"
	"sync"
)

// MemoryStore keeps sessions in process memory; they are lost on restart
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]Session),
	}
}

// Get returns a copy of the user's session
func (m *MemoryStore) Get(_ context.Context, userID int64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNoSession
	}
	s = s.clone()
	return &s, nil
}

// Set stores the user's session, clearing it when the step is idle
func (m *MemoryStore) Set(_ context.Context, userID int64, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s == nil || s.Step == StepIdle {
		delete(m.sessions, userID)
		return nil
	}
	m.sessions[userID] = s.clone()
	return nil
}

// clone copies the session including the pending upgrade
func (s Session) clone() Session {
	if s.Upgrade != nil {
		up := *s.Upgrade
		s.Upgrade = &up
	}
	return s
}

// Clear removes the user's session
func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}
