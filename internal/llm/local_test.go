package llm

import (
	"context"
	"math"
	"testing"
)

func TestLocalEmbedderIsDeterministic(t *testing.T) {
	embedder := NewLocalEmbedder()

	first, err := embedder.Embed(context.Background(), []string{"orders with totals"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	second, err := embedder.Embed(context.Background(), []string{"orders with totals"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	for i := range first[0] {
		if first[0][i] != second[0][i] {
			t.Fatalf("vectors differ at %d", i)
		}
	}
}

func TestLocalEmbedderNormalizesVectors(t *testing.T) {
	embedder := NewLocalEmbedder()

	vectors, err := embedder.Embed(context.Background(), []string{"customer orders revenue"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	var norm float64
	for _, value := range vectors[0] {
		norm += float64(value) * float64(value)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Fatalf("norm = %f, want 1", norm)
	}
}

func TestLocalEmbedderSharedVocabularyScoresHigher(t *testing.T) {
	embedder := NewLocalEmbedder()

	vectors, err := embedder.Embed(context.Background(), []string{
		"orders order_id customer_id total",
		"table orders with order totals",
		"warehouse shelf locations",
	})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	related := dot(vectors[0], vectors[1])
	unrelated := dot(vectors[0], vectors[2])
	if related <= unrelated {
		t.Fatalf("related similarity %f <= unrelated %f", related, unrelated)
	}
}

func TestLocalEmbedderEmptyText(t *testing.T) {
	embedder := NewLocalEmbedder()

	vectors, err := embedder.Embed(context.Background(), []string{""})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	for _, value := range vectors[0] {
		if value != 0 {
			t.Fatal("expected zero vector for empty text")
		}
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
