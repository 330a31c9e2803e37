package genai

import (
	"context"

	"github.com/openai/openai-go"
)

// ClientInterface abstracts the GenAI client so flows can be tested with
// fakes instead of live API calls.
type ClientInterface interface {
	// GenerateWithMessages generates a completion for an assembled message list.
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)

	// Generate generates a completion for a system + user prompt pair.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Embed computes an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Speech synthesizes the text as base64-encoded MP3 audio.
	Speech(ctx context.Context, text string) (string, error)
}
