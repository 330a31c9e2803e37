package knowledge

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/Ronald-silva/agenbot/internal/models"
)

// similarityEpsilon guards the cosine denominator against all-zero vectors.
const similarityEpsilon = 1e-8

// DefaultTopK is the number of snippets returned when none is configured.
const DefaultTopK = 3

// Embedder produces a query embedding. Implemented by genai.Client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Retriever ranks knowledge-base snippets against a free-text query by
// cosine similarity of embeddings.
type Retriever struct {
	base     *Base
	embedder Embedder
	minScore float64 // 0 disables the relevance floor
}

// NewRetriever creates a retriever over the given base. minScore > 0 enables
// the relevance floor: snippets scoring below it are discarded before
// truncation, and an empty result is returned rather than falling back to
// unfiltered candidates.
func NewRetriever(base *Base, embedder Embedder, minScore float64) *Retriever {
	return &Retriever{base: base, embedder: embedder, minScore: minScore}
}

// Retrieve returns up to topK snippet texts, most relevant first. Ties keep
// the original insertion order (stable sort). The only side effect is the
// network call to embed the query; a failure there surfaces as
// *models.RetrievalError and callers proceed with an empty context.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if r.base.Size() == 0 {
		return nil, nil
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("Retriever.Retrieve: query embedding failed", "error", err)
		return nil, &models.RetrievalError{Query: query, Err: err}
	}

	type scored struct {
		text  string
		score float64
	}
	candidates := make([]scored, 0, r.base.Size())
	for _, s := range r.base.Snippets() {
		score := CosineSimilarity(queryVec, s.Embedding)
		if r.minScore > 0 && score < r.minScore {
			continue
		}
		candidates = append(candidates, scored{text: s.Text, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.text
	}
	slog.Debug("Retriever.Retrieve: ranked snippets", "candidates", len(texts), "topK", topK)
	return texts, nil
}

// CosineSimilarity computes dot(a,b) / (||a||*||b|| + ε). Vectors of
// different lengths score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	return dot / (math.Sqrt(normA)*math.Sqrt(normB) + similarityEpsilon)
}
