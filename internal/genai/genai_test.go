package genai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Ronald-silva/agenbot/internal/models"
)

// mockChatService returns a canned response or error, counting calls.
type mockChatService struct {
	resp  *openai.ChatCompletion
	err   error
	calls int
}

func (m *mockChatService) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

type mockEmbeddingService struct {
	resp  *openai.CreateEmbeddingResponse
	err   error
	calls int
}

func (m *mockEmbeddingService) New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

type mockSpeechService struct {
	audio []byte
	err   error
	calls int
}

func (m *mockSpeechService) New(ctx context.Context, body openai.AudioSpeechNewParams, opts ...option.RequestOption) (*http.Response, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{Body: io.NopCloser(strings.NewReader(string(m.audio)))}, nil
}

func newTestClient(chat chatService, embed embeddingService, speech speechService) *Client {
	return &Client{
		chat:           chat,
		embeddings:     embed,
		speech:         speech,
		model:          openai.ChatModelGPT4o,
		embeddingModel: openai.EmbeddingModelTextEmbeddingAda002,
		maxAttempts:    3,
		retryDelay:     time.Millisecond,
		sleep:          func(time.Duration) {},
	}
}

func TestGenerateWithMessagesSuccess(t *testing.T) {
	mock := &mockChatService{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "  Olá, João!  "}},
		},
	}}
	c := newTestClient(mock, nil, nil)

	got, err := c.Generate(context.Background(), "persona", "oi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Olá, João!" {
		t.Errorf("expected trimmed content, got %q", got)
	}
	if mock.calls != 1 {
		t.Errorf("expected 1 call, got %d", mock.calls)
	}
}

func TestGenerateRetriesThenFails(t *testing.T) {
	mock := &mockChatService{err: errors.New("rate limited")}
	c := newTestClient(mock, nil, nil)

	_, err := c.Generate(context.Background(), "persona", "oi")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	var genErr *models.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %T: %v", err, err)
	}
	if genErr.Attempts != 3 {
		t.Errorf("expected 3 attempts recorded, got %d", genErr.Attempts)
	}
	if mock.calls != 3 {
		t.Errorf("expected 3 calls (bounded loop), got %d", mock.calls)
	}
}

func TestGenerateStopsWhenContextCanceled(t *testing.T) {
	mock := &mockChatService{err: errors.New("rate limited")}
	c := newTestClient(mock, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Generate(ctx, "persona", "oi")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if mock.calls != 0 {
		t.Errorf("expected no provider calls after cancellation, got %d", mock.calls)
	}
}

func TestEmbedStopsWhenContextCanceled(t *testing.T) {
	mock := &mockEmbeddingService{err: errors.New("boom")}
	c := newTestClient(nil, mock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Embed(ctx, "q")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if mock.calls != 0 {
		t.Errorf("expected no provider calls after cancellation, got %d", mock.calls)
	}
}

func TestGenerateEmptyChoices(t *testing.T) {
	mock := &mockChatService{resp: &openai.ChatCompletion{}}
	c := newTestClient(mock, nil, nil)

	_, err := c.Generate(context.Background(), "persona", "oi")
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
	if mock.calls != 3 {
		t.Errorf("empty choices should be retried, got %d calls", mock.calls)
	}
}

func TestEmbedReturnsVector(t *testing.T) {
	mock := &mockEmbeddingService{resp: &openai.CreateEmbeddingResponse{
		Data: []openai.Embedding{{Embedding: []float64{0.1, 0.2, 0.3}}},
	}}
	c := newTestClient(nil, mock, nil)

	vec, err := c.Embed(context.Background(), "relógio clássico")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Errorf("unexpected vector: %v", vec)
	}
}

func TestEmbedExhaustsRetries(t *testing.T) {
	mock := &mockEmbeddingService{err: errors.New("boom")}
	c := newTestClient(nil, mock, nil)

	_, err := c.Embed(context.Background(), "q")
	if err == nil {
		t.Fatal("expected error")
	}
	if mock.calls != 3 {
		t.Errorf("expected 3 calls, got %d", mock.calls)
	}
}

func TestSpeechEncodesBase64(t *testing.T) {
	mock := &mockSpeechService{audio: []byte("mp3-bytes")}
	c := newTestClient(nil, nil, mock)

	b64, err := c.Speech(context.Background(), "Olá!")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b64 != "bXAzLWJ5dGVz" {
		t.Errorf("unexpected base64 output: %q", b64)
	}
}

func TestSegmentTextSplitsOnSentences(t *testing.T) {
	long := strings.Repeat("Primeira frase do texto. ", 300)
	segments := segmentText(long, maxSpeechInputLen)
	if len(segments) < 2 {
		t.Fatalf("expected multiple segments, got %d", len(segments))
	}
	for i, seg := range segments {
		if len(seg) > maxSpeechInputLen {
			t.Errorf("segment %d exceeds limit: %d", i, len(seg))
		}
	}

	short := segmentText("curto", maxSpeechInputLen)
	if len(short) != 1 || short[0] != "curto" {
		t.Errorf("short text should be a single segment: %v", short)
	}
}
