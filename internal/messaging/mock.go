package messaging

import (
	"context"
	"sync"
)

// SentMessage records one outbound text sent through the mock.
type SentMessage struct {
	To   string
	Body string
}

// SentAudio records one outbound audio sent through the mock.
type SentAudio struct {
	To       string
	Audio    string
	Filename string
}

// MockService is an in-memory Service implementation for tests.
type MockService struct {
	mu           sync.Mutex
	SentMessages []SentMessage
	SentAudios   []SentAudio
	TextErr      error
	AudioErr     error
}

// NewMockService creates an empty mock delivery service.
func NewMockService() *MockService {
	return &MockService{}
}

func (m *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return NormalizePhone(recipient)
}

func (m *MockService) SendMessage(ctx context.Context, to string, body string) error {
	if m.TextErr != nil {
		return m.TextErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}

func (m *MockService) SendAudio(ctx context.Context, to string, audioBase64, filename string) error {
	if m.AudioErr != nil {
		return m.AudioErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentAudios = append(m.SentAudios, SentAudio{To: to, Audio: audioBase64, Filename: filename})
	return nil
}

// LastMessage returns the most recent text sent, or nil.
func (m *MockService) LastMessage() *SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.SentMessages) == 0 {
		return nil
	}
	msg := m.SentMessages[len(m.SentMessages)-1]
	return &msg
}
