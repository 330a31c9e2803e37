package knowledge

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/Ronald-silva/agenbot/internal/models"
)

// fixedEmbedder returns a canned vector or error for every query.
type fixedEmbedder struct {
	vec []float64
	err error
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func testBase() *Base {
	return NewBase([]Snippet{
		{Text: "horário de funcionamento", Embedding: []float64{1, 0, 0}},
		{Text: "política de garantia", Embedding: []float64{0, 1, 0}},
		{Text: "formas de pagamento", Embedding: []float64{0, 0, 1}},
	})
}

func TestRetrieveExactMatchWins(t *testing.T) {
	// Query embedding identical to snippet #2: similarity 1.0 dominates.
	r := NewRetriever(testBase(), &fixedEmbedder{vec: []float64{0, 1, 0}}, 0)

	got, err := r.Retrieve(context.Background(), "garantia?", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "política de garantia" {
		t.Errorf("expected exact-match snippet first, got %v", got)
	}
}

func TestRetrieveDeterministic(t *testing.T) {
	r := NewRetriever(testBase(), &fixedEmbedder{vec: []float64{0.5, 0.5, 0.1}}, 0)

	first, err := r.Retrieve(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Retrieve(context.Background(), "q", 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("ranking not deterministic: %v vs %v", first, again)
		}
	}
}

func TestRetrieveTiesKeepInsertionOrder(t *testing.T) {
	base := NewBase([]Snippet{
		{Text: "primeiro", Embedding: []float64{1, 1, 0}},
		{Text: "segundo", Embedding: []float64{1, 1, 0}},
		{Text: "terceiro", Embedding: []float64{1, 1, 0}},
	})
	r := NewRetriever(base, &fixedEmbedder{vec: []float64{1, 1, 0}}, 0)

	got, err := r.Retrieve(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"primeiro", "segundo", "terceiro"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("stable sort broke tie order: %v", got)
	}
}

func TestRetrieveRelevanceFloor(t *testing.T) {
	// Orthogonal query scores 0 against every snippet; the floor removes all
	// candidates and the result must be empty, not unfiltered fallback.
	base := NewBase([]Snippet{
		{Text: "a", Embedding: []float64{1, 0, 0}},
		{Text: "b", Embedding: []float64{0, 1, 0}},
	})
	r := NewRetriever(base, &fixedEmbedder{vec: []float64{0, 0, 1}}, 0.7)

	got, err := r.Retrieve(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result under floor, got %v", got)
	}
}

func TestRetrieveTopKTruncation(t *testing.T) {
	r := NewRetriever(testBase(), &fixedEmbedder{vec: []float64{1, 0.1, 0.01}}, 0)

	got, err := r.Retrieve(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 snippets, got %d", len(got))
	}
	if got[0] != "horário de funcionamento" {
		t.Errorf("expected closest snippet first, got %v", got)
	}
}

func TestRetrieveEmbedFailure(t *testing.T) {
	r := NewRetriever(testBase(), &fixedEmbedder{err: errors.New("api down")}, 0)

	_, err := r.Retrieve(context.Background(), "q", 3)
	var retErr *models.RetrievalError
	if !errors.As(err, &retErr) {
		t.Fatalf("expected RetrievalError, got %T: %v", err, err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float64{1, 0}, []float64{1, 0}); math.Abs(got-1.0) > 1e-6 {
		t.Errorf("identical vectors should score ~1.0, got %f", got)
	}
	if got := CosineSimilarity([]float64{1, 0}, []float64{0, 1}); math.Abs(got) > 1e-6 {
		t.Errorf("orthogonal vectors should score ~0, got %f", got)
	}
	// Degenerate all-zero vector must not divide by zero.
	if got := CosineSimilarity([]float64{0, 0}, []float64{0, 0}); got != 0 {
		t.Errorf("zero vectors should score 0, got %f", got)
	}
	if got := CosineSimilarity([]float64{1}, []float64{1, 2}); got != 0 {
		t.Errorf("mismatched lengths should score 0, got %f", got)
	}
}
