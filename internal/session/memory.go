// internal/session/memory.go
package session

import (
	"context"
	"sync"
	"time"

	"geodialogue/internal/common/metrics"
	"geodialogue/internal/models"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
}

// MemoryStore keeps states in process. Expired states read as missing and
// are removed by Sweep.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*models.ConversationState
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryStore returns an empty store. A ttl of zero keeps states forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		states: map[string]*models.ConversationState{},
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, state *models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.states[state.SessionID]; ok && !cur.IsExpired(s.now(), s.ttl) {
		return models.ErrSessionExists
	}
	s.states[state.SessionID] = state.Clone()
	metrics.SessionsActive.Set(float64(len(s.states)))
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[sessionID]
	if !ok || st.IsExpired(s.now(), s.ttl) {
		return nil, models.ErrSessionNotFound
	}
	return st.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, state *models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.SessionID] = state.Clone()
	metrics.SessionsActive.Set(float64(len(s.states)))
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sessionID)
	metrics.SessionsActive.Set(float64(len(s.states)))
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len counts stored states, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// Sweep removes expired states and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, st := range s.states {
		if st.IsExpired(now, s.ttl) {
			delete(s.states, id)
			removed++
		}
	}
	metrics.SessionsActive.Set(float64(len(s.states)))
	return removed
}
