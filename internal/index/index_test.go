package index

import (
	"context"
	"errors"
	"testing"

	"github.com/sqlsage/sqlsage/internal/llm"
	"github.com/sqlsage/sqlsage/internal/schema"
)

func testSchema() schema.Schema {
	return schema.Schema{Tables: []schema.Table{
		{
			Name: "orders",
			Columns: []schema.Column{
				{Name: "order_id", Type: "bigint"},
				{Name: "customer_id", Type: "bigint"},
				{Name: "total", Type: "numeric"},
			},
		},
		{
			Name: "customers",
			Columns: []schema.Column{
				{Name: "customer_id", Type: "bigint"},
				{Name: "email", Type: "text"},
			},
		},
		{
			Name: "warehouses",
			Columns: []schema.Column{
				{Name: "warehouse_id", Type: "bigint"},
				{Name: "region", Type: "text"},
			},
		},
	}}
}

func TestBuildIsDeterministic(t *testing.T) {
	embedder := llm.NewLocalEmbedder()

	first, err := Build(context.Background(), testSchema(), embedder)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	second, err := Build(context.Background(), testSchema(), embedder)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	a, b := first.Fragments(), second.Fragments()
	if len(a) != len(b) {
		t.Fatalf("fragment counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("fragment %d ID differs: %q vs %q", i, a[i].ID, b[i].ID)
		}
	}
}

func TestBuildRejectsEmptySchema(t *testing.T) {
	_, err := Build(context.Background(), schema.Schema{}, llm.NewLocalEmbedder())
	if !errors.Is(err, ErrEmptySchema) {
		t.Fatalf("Build() error = %v, want ErrEmptySchema", err)
	}
}

func TestRetrieveRanksRelevantTableFirst(t *testing.T) {
	ix, err := Build(context.Background(), testSchema(), llm.NewLocalEmbedder())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	hits, err := ix.Retrieve(context.Background(), "orders total customer_id order_id", 2)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d", len(hits))
	}
	if hits[0].Table != "orders" {
		t.Fatalf("top hit table = %q, want orders", hits[0].Table)
	}
}

func TestRetrieveCapsKAtFragmentCount(t *testing.T) {
	ix, err := Build(context.Background(), testSchema(), llm.NewLocalEmbedder())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	hits, err := ix.Retrieve(context.Background(), "anything", 100)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(hits) != len(ix.Fragments()) {
		t.Fatalf("len(hits) = %d, want %d", len(hits), len(ix.Fragments()))
	}
}

func TestRetrieveRejectsNonPositiveK(t *testing.T) {
	ix, err := Build(context.Background(), testSchema(), llm.NewLocalEmbedder())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, err := ix.Retrieve(context.Background(), "anything", 0); err == nil {
		t.Fatal("expected error for k=0")
	}
}

func TestRetrieveBreaksTiesByFragmentID(t *testing.T) {
	ix, err := Build(context.Background(), testSchema(), llm.NewLocalEmbedder())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// A query sharing no vocabulary scores zero against everything, so
	// ranking falls back to the ID tie-break.
	hits, err := ix.Retrieve(context.Background(), "zzzz qqqq", 100)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i-1].ID > hits[i].ID {
			t.Fatalf("hits not ID-ordered at %d: %q > %q", i, hits[i-1].ID, hits[i].ID)
		}
	}
}

func TestRebuildSwapsFragments(t *testing.T) {
	ix, err := Build(context.Background(), testSchema(), llm.NewLocalEmbedder())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	before := len(ix.Fragments())

	smaller := schema.Schema{Tables: []schema.Table{{
		Name:    "events",
		Columns: []schema.Column{{Name: "event_id", Type: "bigint"}},
	}}}
	if err := ix.Rebuild(context.Background(), smaller); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	after := ix.Fragments()
	if len(after) >= before {
		t.Fatalf("fragments = %d, want fewer than %d", len(after), before)
	}
	for _, fragment := range after {
		if fragment.Table != "events" {
			t.Fatalf("unexpected table %q after rebuild", fragment.Table)
		}
	}
}

func TestRebuildFailureLeavesOldSnapshot(t *testing.T) {
	ix, err := Build(context.Background(), testSchema(), llm.NewLocalEmbedder())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	before := len(ix.Fragments())

	if err := ix.Rebuild(context.Background(), schema.Schema{}); !errors.Is(err, ErrEmptySchema) {
		t.Fatalf("Rebuild() error = %v, want ErrEmptySchema", err)
	}
	if len(ix.Fragments()) != before {
		t.Fatal("failed rebuild must not replace the snapshot")
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(_ context.Context, _ []string) ([][]float32, error) {
	return nil, errors.New("embedding backend down")
}

func TestBuildWrapsEmbeddingErrors(t *testing.T) {
	_, err := Build(context.Background(), testSchema(), failingEmbedder{})
	var embedErr *EmbeddingError
	if !errors.As(err, &embedErr) {
		t.Fatalf("Build() error = %T, want *EmbeddingError", err)
	}
}
