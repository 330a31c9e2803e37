package flow

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Ronald-silva/agenbot/internal/models"
	"github.com/Ronald-silva/agenbot/internal/store"
)

// StateManager mediates all conversation-state access for the engine. It
// owns the bookkeeping rules: CreatedAt is immutable after the first save,
// LastUpdated is stamped on every save, InteractionCount increments by
// exactly one per save relative to the previously stored value, and history
// stays within the FIFO bound.
//
// A per-phone mutex serializes the read-modify-write cycle so duplicate
// webhook deliveries for the same phone cannot lose updates. Different
// phones proceed in parallel.
type StateManager struct {
	store store.Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStateManager creates a state manager over the given store backend.
func NewStateManager(s store.Store) *StateManager {
	return &StateManager{
		store: s,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// LockPhone acquires the mutex for a phone and returns its unlock func.
func (m *StateManager) LockPhone(phone string) func() {
	m.mu.Lock()
	l, ok := m.locks[phone]
	if !ok {
		l = &sync.Mutex{}
		m.locks[phone] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Load returns the conversation state for a phone. It never fails: an
// unseen phone gets a freshly initialized state waiting on the name
// question, and a store read error degrades to the same fresh state with
// the failure logged.
func (m *StateManager) Load(phone string) *models.ConversationState {
	state, err := m.store.GetConversationState(phone)
	if err != nil {
		slog.Error("StateManager.Load: store read failed, starting fresh state", "phone", phone, "error", err)
		return models.NewConversationState(phone)
	}
	if state == nil {
		slog.Debug("StateManager.Load: no state found, initializing", "phone", phone)
		return models.NewConversationState(phone)
	}
	return state
}

// Save persists the state with bookkeeping applied. The returned error is
// informational: callers log it and keep going, the turn is never failed
// because persistence is down.
func (m *StateManager) Save(state *models.ConversationState) error {
	now := m.now()

	prior, err := m.store.GetConversationState(state.Phone)
	if err != nil {
		slog.Warn("StateManager.Save: prior state read failed, treating as first save", "phone", state.Phone, "error", err)
		prior = nil
	}

	if prior != nil {
		state.Metadata.CreatedAt = prior.Metadata.CreatedAt
		state.Metadata.InteractionCount = prior.Metadata.InteractionCount + 1
	} else {
		if state.Metadata.CreatedAt.IsZero() {
			state.Metadata.CreatedAt = now
		}
		state.Metadata.InteractionCount++
	}
	state.Metadata.LastUpdated = now

	if len(state.History) > models.MaxHistoryMessages {
		state.History = state.History[len(state.History)-models.MaxHistoryMessages:]
	}

	if err := m.store.SaveConversationState(*state); err != nil {
		return &models.StoreError{Op: "save", Phone: state.Phone, Err: err}
	}
	return nil
}

// Reset deletes a phone's state entirely. Used by the administrative reset
// endpoint and by tests.
func (m *StateManager) Reset(phone string) error {
	if err := m.store.DeleteConversationState(phone); err != nil {
		return &models.StoreError{Op: "delete", Phone: phone, Err: err}
	}
	slog.Info("StateManager.Reset: conversation state deleted", "phone", phone)
	return nil
}
