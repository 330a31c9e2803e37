// Package genai provides GenAI-enhanced operations using the OpenAI API.
//
// It wraps chat completions, embeddings, and speech synthesis behind small
// interfaces so the rest of the system can be tested against fakes. Every
// network call runs inside an explicit bounded retry loop with linear
// backoff; exhaustion surfaces as a typed error and never as a panic.
package genai

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Ronald-silva/agenbot/internal/models"
)

// Retry configuration defaults. The delay is multiplied by the attempt
// number, giving the linear backoff the delivery path also uses.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
)

// maxSpeechInputLen is the longest text the TTS endpoint accepts in one call.
const maxSpeechInputLen = 4000

// speechVoice is the synthesis voice. The API accepts "nova" even though the
// SDK's voice constants do not include it.
const speechVoice = openai.AudioSpeechNewParamsVoice("nova")

// chatService is the minimal surface of the chat completions client.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// embeddingService is the minimal surface of the embeddings client.
type embeddingService interface {
	New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)
}

// speechService is the minimal surface of the audio speech client.
type speechService interface {
	New(ctx context.Context, body openai.AudioSpeechNewParams, opts ...option.RequestOption) (*http.Response, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey         string
	Model          openai.ChatModel
	EmbeddingModel openai.EmbeddingModel
	MaxAttempts    int
	RetryDelay     time.Duration
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding $OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat completion model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model openai.EmbeddingModel) Option {
	return func(o *Opts) { o.EmbeddingModel = model }
}

// WithMaxAttempts sets the retry budget for each network call.
func WithMaxAttempts(n int) Option {
	return func(o *Opts) { o.MaxAttempts = n }
}

// WithRetryDelay sets the base backoff delay between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Opts) { o.RetryDelay = d }
}

// Client wraps the OpenAI services used by agenbot.
type Client struct {
	chat           chatService
	embeddings     embeddingService
	speech         speechService
	model          openai.ChatModel
	embeddingModel openai.EmbeddingModel
	maxAttempts    int
	retryDelay     time.Duration
	sleep          func(time.Duration)
}

// NewClient initializes a GenAI client. The API key comes from options or
// the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:          openai.ChatModelGPT4o,
		EmbeddingModel: openai.EmbeddingModelTextEmbeddingAda002,
		MaxAttempts:    DefaultMaxAttempts,
		RetryDelay:     DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	slog.Debug("genai.NewClient: creating client", "model", cfg.Model, "embedding_model", cfg.EmbeddingModel, "max_attempts", cfg.MaxAttempts)

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{
		chat:           &cli.Chat.Completions,
		embeddings:     &cli.Embeddings,
		speech:         &cli.Audio.Speech,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		maxAttempts:    cfg.MaxAttempts,
		retryDelay:     cfg.RetryDelay,
		sleep:          time.Sleep,
	}, nil
}

// GenerateWithMessages generates a completion for the assembled message list.
// Fails with *models.GenerationError only after exhausting the retry budget.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openai.Float(0.7),
		MaxTokens:   openai.Int(500),
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", &models.GenerationError{Attempts: attempt - 1, Err: err}
		}
		resp, err := c.chat.New(ctx, params)
		if err == nil {
			if len(resp.Choices) == 0 {
				err = fmt.Errorf("no choices returned")
			} else {
				return strings.TrimSpace(resp.Choices[0].Message.Content), nil
			}
		}
		lastErr = err
		slog.Warn("genai.GenerateWithMessages: attempt failed", "attempt", attempt, "max_attempts", c.maxAttempts, "error", err)
		if attempt < c.maxAttempts {
			c.sleep(time.Duration(attempt) * c.retryDelay)
		}
	}
	return "", &models.GenerationError{Attempts: c.maxAttempts, Err: lastErr}
}

// Generate is a convenience wrapper for a single system + user prompt pair.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	})
}

// Embed computes an embedding vector for the given text. The vector has the
// fixed dimensionality of the configured embedding model, so similarity
// scores against a knowledge base built with the same model are meaningful.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	params := openai.EmbeddingNewParams{
		Model: c.embeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("embedding canceled after %d attempts: %w", attempt-1, err)
		}
		resp, err := c.embeddings.New(ctx, params)
		if err == nil {
			if len(resp.Data) == 0 {
				err = fmt.Errorf("no embedding returned")
			} else {
				return resp.Data[0].Embedding, nil
			}
		}
		lastErr = err
		slog.Warn("genai.Embed: attempt failed", "attempt", attempt, "max_attempts", c.maxAttempts, "error", err)
		if attempt < c.maxAttempts {
			c.sleep(time.Duration(attempt) * c.retryDelay)
		}
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// Speech synthesizes the text as MP3 audio and returns it base64-encoded,
// ready for the gateway's send-audio operation. Text longer than the TTS
// input limit is segmented on sentence boundaries and only the first segment
// is synthesized, with a spoken note that the message was shortened.
func (c *Client) Speech(ctx context.Context, text string) (string, error) {
	input := text
	if segments := segmentText(text, maxSpeechInputLen); len(segments) > 1 {
		slog.Debug("genai.Speech: text segmented for synthesis", "segments", len(segments))
		input = segments[0] + "... Mensagem resumida para áudio."
	}

	params := openai.AudioSpeechNewParams{
		Model:          openai.SpeechModelTTS1,
		Voice:          speechVoice,
		Input:          input,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("speech synthesis canceled after %d attempts: %w", attempt-1, err)
		}
		resp, err := c.speech.New(ctx, params)
		if err == nil {
			data, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr == nil {
				return base64.StdEncoding.EncodeToString(data), nil
			}
			err = readErr
		}
		lastErr = err
		slog.Warn("genai.Speech: attempt failed", "attempt", attempt, "max_attempts", c.maxAttempts, "error", err)
		if attempt < c.maxAttempts {
			c.sleep(time.Duration(attempt) * c.retryDelay)
		}
	}
	return "", fmt.Errorf("speech synthesis failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// segmentText splits text into chunks no longer than maxLen, preferring
// sentence boundaries.
func segmentText(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var segments []string
	var current strings.Builder
	for _, sentence := range splitSentences(text) {
		if current.Len() > 0 && current.Len()+len(sentence)+1 > maxLen {
			segments = append(segments, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}

// splitSentences breaks text after terminal punctuation followed by a space.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' {
				sentences = append(sentences, strings.TrimSpace(text[start:i+1]))
				start = i + 2
			}
		}
	}
	if start < len(text) {
		sentences = append(sentences, strings.TrimSpace(text[start:]))
	}
	return sentences
}
