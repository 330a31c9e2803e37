package flow

import (
	"fmt"
	"testing"
	"time"

	"github.com/Ronald-silva/agenbot/internal/models"
	"github.com/Ronald-silva/agenbot/internal/store"
)

func newTestStateManager() *StateManager {
	return NewStateManager(store.NewInMemoryStore())
}

func TestLoadUnseenPhone(t *testing.T) {
	m := newTestStateManager()
	state := m.Load("5585999990000")
	if state.Name != "" {
		t.Errorf("expected empty name, got %q", state.Name)
	}
	if state.PendingQuestion != models.PendingAskName {
		t.Errorf("expected pending ask_name, got %q", state.PendingQuestion)
	}
	if state.Metadata.InteractionCount != 0 {
		t.Errorf("expected zero interaction count, got %d", state.Metadata.InteractionCount)
	}
}

func TestSaveInteractionCountMonotonic(t *testing.T) {
	m := newTestStateManager()
	const n = 5
	for i := 0; i < n; i++ {
		state := m.Load("5585999990000")
		state.AppendHistory("user", fmt.Sprintf("mensagem %d", i))
		if err := m.Save(state); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	state := m.Load("5585999990000")
	if state.Metadata.InteractionCount != n {
		t.Errorf("expected interaction count %d after %d saves, got %d", n, n, state.Metadata.InteractionCount)
	}
}

func TestSavePreservesCreatedAt(t *testing.T) {
	m := newTestStateManager()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	current := base
	m.now = func() time.Time { return current }

	state := m.Load("5585999990000")
	if err := m.Save(state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current = base.Add(time.Hour)
	state = m.Load("5585999990000")
	if err := m.Save(state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state = m.Load("5585999990000")
	if !state.Metadata.CreatedAt.Equal(base) {
		t.Errorf("expected CreatedAt preserved at %v, got %v", base, state.Metadata.CreatedAt)
	}
	if !state.Metadata.LastUpdated.Equal(base.Add(time.Hour)) {
		t.Errorf("expected LastUpdated stamped at %v, got %v", base.Add(time.Hour), state.Metadata.LastUpdated)
	}
}

func TestSaveTrimsHistory(t *testing.T) {
	m := newTestStateManager()
	state := m.Load("5585999990000")
	for i := 0; i < 12; i++ {
		state.History = append(state.History, models.Message{Role: "user", Content: fmt.Sprintf("m%d", i)})
	}
	if err := m.Save(state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saved := m.Load("5585999990000")
	if len(saved.History) != models.MaxHistoryMessages {
		t.Fatalf("expected history trimmed to %d, got %d", models.MaxHistoryMessages, len(saved.History))
	}
	if saved.History[0].Content != "m2" || saved.History[9].Content != "m11" {
		t.Errorf("expected 10 most recent entries oldest-first, got first=%q last=%q",
			saved.History[0].Content, saved.History[9].Content)
	}
}

func TestReset(t *testing.T) {
	m := newTestStateManager()
	state := m.Load("5585999990000")
	state.Name = "João"
	if err := m.Save(state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Reset("5585999990000"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fresh := m.Load("5585999990000")
	if fresh.Name != "" || fresh.PendingQuestion != models.PendingAskName {
		t.Errorf("expected fresh state after reset, got name=%q pending=%q", fresh.Name, fresh.PendingQuestion)
	}
}

func TestLoadDegradesOnStoreError(t *testing.T) {
	m := NewStateManager(&failingStore{})
	state := m.Load("5585999990000")
	if state == nil {
		t.Fatal("expected fresh state despite store failure")
	}
	if state.PendingQuestion != models.PendingAskName {
		t.Errorf("expected pending ask_name, got %q", state.PendingQuestion)
	}
}

type failingStore struct{}

func (f *failingStore) GetConversationState(phone string) (*models.ConversationState, error) {
	return nil, fmt.Errorf("backend down")
}

func (f *failingStore) SaveConversationState(state models.ConversationState) error {
	return fmt.Errorf("backend down")
}

func (f *failingStore) DeleteConversationState(phone string) error {
	return fmt.Errorf("backend down")
}

func (f *failingStore) Close() error { return nil }
