package store

import (
	"log/slog"

	"github.com/Ronald-silva/agenbot/internal/models"
)

// CachedStore layers an in-memory write-through cache over a durable backend.
// Reads are served from memory when present; writes go to both. Backend
// failures are logged and swallowed so message processing always has a
// working (if process-local) view of conversation state.
type CachedStore struct {
	backend Store
	memory  *InMemoryStore
}

// NewCachedStore wraps the given durable backend.
func NewCachedStore(backend Store) *CachedStore {
	return &CachedStore{
		backend: backend,
		memory:  NewInMemoryStore(),
	}
}

// GetConversationState returns the cached state, falling back to the backend
// on a cache miss. A backend error degrades to the (empty) memory view.
func (s *CachedStore) GetConversationState(phone string) (*models.ConversationState, error) {
	if state, err := s.memory.GetConversationState(phone); err == nil && state != nil {
		return state, nil
	}

	state, err := s.backend.GetConversationState(phone)
	if err != nil {
		slog.Warn("CachedStore backend read failed, serving in-memory view",
			"error", err, "phone", phone)
		return nil, nil
	}
	if state != nil {
		// Warm the cache for the next turn.
		if err := s.memory.SaveConversationState(*state); err != nil {
			slog.Warn("CachedStore cache warm failed", "error", err, "phone", phone)
		}
	}
	return state, nil
}

// SaveConversationState writes through to memory and the backend. A backend
// failure is logged; the memory write keeps the conversation consistent for
// this process.
func (s *CachedStore) SaveConversationState(state models.ConversationState) error {
	if err := s.memory.SaveConversationState(state); err != nil {
		return err
	}
	if err := s.backend.SaveConversationState(state); err != nil {
		slog.Warn("CachedStore backend write failed, state held in memory only",
			"error", err, "phone", state.Phone)
	}
	return nil
}

// DeleteConversationState removes the entry from both layers.
func (s *CachedStore) DeleteConversationState(phone string) error {
	if err := s.memory.DeleteConversationState(phone); err != nil {
		return err
	}
	if err := s.backend.DeleteConversationState(phone); err != nil {
		slog.Warn("CachedStore backend delete failed", "error", err, "phone", phone)
	}
	return nil
}

// Close closes the durable backend.
func (s *CachedStore) Close() error {
	return s.backend.Close()
}

// Backend exposes the wrapped durable store, used by health checks.
func (s *CachedStore) Backend() Store {
	return s.backend
}
