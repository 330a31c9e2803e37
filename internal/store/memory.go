package store

import (
	"sync"

	"github.com/Ronald-silva/agenbot/internal/models"
)

// InMemoryStore keeps conversation state in a process-local map. It is the
// default backend for tests and the fallback view when a durable backend is
// unavailable.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[string]models.ConversationState
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[string]models.ConversationState)}
}

// GetConversationState returns a copy of the stored state, or (nil, nil) when
// the phone has never been seen.
func (s *InMemoryStore) GetConversationState(phone string) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[phone]
	if !ok {
		return nil, nil
	}
	// Copy the history slice so callers cannot alias stored state.
	out := state
	out.History = append([]models.Message(nil), state.History...)
	return &out, nil
}

// SaveConversationState stores a copy of the state keyed by its phone.
func (s *InMemoryStore) SaveConversationState(state models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.History = append([]models.Message(nil), state.History...)
	s.states[state.Phone] = state
	return nil
}

// DeleteConversationState removes the entry for the phone, if any.
func (s *InMemoryStore) DeleteConversationState(phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, phone)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
