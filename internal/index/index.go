// Package index embeds schema fragments and serves nearest-neighbor
// retrieval over them. Builds are deterministic: identical schema input
// yields identical fragment IDs and order.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sqlsage/sqlsage/internal/llm"
	"github.com/sqlsage/sqlsage/internal/schema"
)

var ErrEmptySchema = errors.New("index: schema has no tables")

// EmbeddingError reports that vectorization could not be computed.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("index: embedding failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

const (
	KindSchema  = "schema"
	KindSamples = "samples"
)

// Fragment is one indexed unit of schema text with its embedding.
// Immutable once built.
type Fragment struct {
	ID        string
	Table     string
	Kind      string
	Text      string
	Embedding []float32
}

// Index holds an immutable fragment snapshot behind a read lock.
// Rebuilds construct a full replacement and swap it in; Retrieve never
// observes a partially built snapshot.
type Index struct {
	embedder llm.Embedder

	mu        sync.RWMutex
	fragments []Fragment
}

func Build(ctx context.Context, s schema.Schema, embedder llm.Embedder) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("index: embedder is required")
	}
	fragments, err := buildFragments(ctx, s, embedder)
	if err != nil {
		return nil, err
	}
	return &Index{embedder: embedder, fragments: fragments}, nil
}

func (ix *Index) Rebuild(ctx context.Context, s schema.Schema) error {
	fragments, err := buildFragments(ctx, s, ix.embedder)
	if err != nil {
		return err
	}
	ix.mu.Lock()
	ix.fragments = fragments
	ix.mu.Unlock()
	return nil
}

// Retrieve returns the ≤k fragments most similar to queryText, ranked
// by cosine similarity descending with ties broken by fragment ID.
func (ix *Index) Retrieve(ctx context.Context, queryText string, k int) ([]Fragment, error) {
	if k <= 0 {
		return nil, fmt.Errorf("index: k must be positive, got %d", k)
	}

	vectors, err := ix.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	if len(vectors) != 1 {
		return nil, &EmbeddingError{Err: fmt.Errorf("got %d query vectors, want 1", len(vectors))}
	}
	queryVector := vectors[0]

	ix.mu.RLock()
	snapshot := ix.fragments
	ix.mu.RUnlock()

	type scored struct {
		fragment Fragment
		score    float64
	}
	ranked := make([]scored, 0, len(snapshot))
	for _, fragment := range snapshot {
		ranked = append(ranked, scored{fragment: fragment, score: cosineSimilarity(queryVector, fragment.Embedding)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].fragment.ID < ranked[j].fragment.ID
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	results := make([]Fragment, k)
	for i := 0; i < k; i++ {
		results[i] = ranked[i].fragment
	}
	return results, nil
}

// Fragments returns a copy of the current snapshot in build order.
func (ix *Index) Fragments() []Fragment {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Fragment, len(ix.fragments))
	copy(out, ix.fragments)
	return out
}

func buildFragments(ctx context.Context, s schema.Schema, embedder llm.Embedder) ([]Fragment, error) {
	if s.Empty() {
		return nil, ErrEmptySchema
	}

	fragments := make([]Fragment, 0, 2*len(s.Tables))
	for _, table := range s.SortedTables() {
		schemaText := schema.RenderTable(table)
		fragments = append(fragments, Fragment{
			ID:    fragmentID("tbl", schemaText),
			Table: table.Name,
			Kind:  KindSchema,
			Text:  schemaText,
		})

		if sampleText := schema.RenderSamples(table); sampleText != "" {
			fragments = append(fragments, Fragment{
				ID:    fragmentID("smp", sampleText),
				Table: table.Name,
				Kind:  KindSamples,
				Text:  sampleText,
			})
		}
	}

	texts := make([]string, len(fragments))
	for i, fragment := range fragments {
		texts[i] = fragment.Text
	}
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	if len(vectors) != len(texts) {
		return nil, &EmbeddingError{Err: fmt.Errorf("got %d vectors, want %d", len(vectors), len(texts))}
	}
	for i := range fragments {
		fragments[i].Embedding = vectors[i]
	}
	return fragments, nil
}

func fragmentID(prefix, text string) string {
	sum := sha256.Sum256([]byte(text))
	return prefix + "-" + hex.EncodeToString(sum[:])[:12]
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
