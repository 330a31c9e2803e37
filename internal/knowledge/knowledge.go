// Package knowledge provides the static knowledge base and the context
// retriever that ranks snippets by embedding similarity.
//
// The snippet set is loaded once at startup and never mutated in the hot
// path, so retrieval is safe to call concurrently for different queries.
package knowledge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// Snippet pairs a short passage of store/product knowledge with its
// precomputed embedding vector. Immutable once loaded.
type Snippet struct {
	Text      string    `json:"snippet"`
	Embedding []float64 `json:"embedding"`
}

// Base is the loaded snippet collection.
type Base struct {
	snippets []Snippet
}

// NewBase creates a knowledge base from an in-memory snippet list. Used by
// tests and by callers that build the set programmatically.
func NewBase(snippets []Snippet) *Base {
	return &Base{snippets: snippets}
}

// LoadBase reads snippets with embeddings from a JSON file. Snippets without
// an embedding are skipped with a warning; ranking needs vectors.
func LoadBase(path string) (*Base, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base file: %w", err)
	}

	var all []Snippet
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge base file %s: %w", path, err)
	}

	snippets := make([]Snippet, 0, len(all))
	for i, s := range all {
		if len(s.Embedding) == 0 {
			slog.Warn("knowledge.LoadBase: snippet has no embedding, skipping", "index", i)
			continue
		}
		snippets = append(snippets, s)
	}

	slog.Info("knowledge.LoadBase: knowledge base loaded", "path", path, "snippets", len(snippets), "skipped", len(all)-len(snippets))
	return &Base{snippets: snippets}, nil
}

// Size returns the number of usable snippets.
func (b *Base) Size() int {
	return len(b.snippets)
}

// Snippets returns the loaded snippet slice. Callers must not mutate it.
func (b *Base) Snippets() []Snippet {
	return b.snippets
}
