package generate

import (
	"context"
	"errors"
	"testing"

	"github.com/sqlsage/sqlsage/internal/llm"
	"github.com/sqlsage/sqlsage/internal/prompt"
)

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "bare statement",
			raw:  "SELECT * FROM users",
			want: "SELECT * FROM users",
		},
		{
			name: "fenced with language tag",
			raw:  "```sql\nSELECT 1;\n```",
			want: "SELECT 1",
		},
		{
			name: "fenced without tag",
			raw:  "```\nSELECT 1\n```",
			want: "SELECT 1",
		},
		{
			name: "prose before statement",
			raw:  "Here is the query you asked for:\n\nSELECT COUNT(*) FROM orders;",
			want: "SELECT COUNT(*) FROM orders",
		},
		{
			name: "prose after semicolon dropped",
			raw:  "SELECT 1; hope that helps!",
			want: "SELECT 1",
		},
		{
			name: "semicolon inside string literal survives",
			raw:  "SELECT * FROM t WHERE note = 'a;b'; trailing",
			want: "SELECT * FROM t WHERE note = 'a;b'",
		},
		{
			name: "with clause",
			raw:  "WITH totals AS (SELECT 1) SELECT * FROM totals",
			want: "WITH totals AS (SELECT 1) SELECT * FROM totals",
		},
		{
			name: "mutating statement surfaces for validation",
			raw:  "Sure! DELETE FROM users;",
			want: "DELETE FROM users",
		},
		{
			name: "keyword inside word is not a boundary",
			raw:  "The reselected value is SELECT 1",
			want: "SELECT 1",
		},
		{
			name: "empty input",
			raw:  "   ",
			want: "",
		},
		{
			name: "no statement keyword",
			raw:  "I cannot answer that question.",
			want: "I cannot answer that question.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractSQL(tt.raw); got != tt.want {
				t.Fatalf("ExtractSQL(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

type fakeChatClient struct {
	reply string
	err   error
	calls int
	last  llm.ChatRequest
}

func (f *fakeChatClient) Complete(_ context.Context, req llm.ChatRequest) (string, error) {
	f.calls++
	f.last = req
	return f.reply, f.err
}

func TestModelGeneratorReturnsExtractedSQL(t *testing.T) {
	client := &fakeChatClient{reply: "```sql\nSELECT 1;\n```"}
	generator := &ModelGenerator{Client: client, Temperature: 0.1}

	got, err := generator.Generate(context.Background(), prompt.Context{System: "sys", User: "q"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "SELECT 1" {
		t.Fatalf("Generate() = %q", got)
	}
	if client.last.Temperature != 0.1 {
		t.Fatalf("temperature = %f", client.last.Temperature)
	}
}

func TestModelGeneratorWrapsTransportErrors(t *testing.T) {
	client := &fakeChatClient{err: errors.New("connection refused")}
	generator := &ModelGenerator{Client: client}

	_, err := generator.Generate(context.Background(), prompt.Context{})
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("Generate() error = %T, want *Failure", err)
	}
	if !errors.Is(err, client.err) {
		t.Fatal("Failure should wrap the transport error")
	}
}

func TestModelGeneratorRejectsEmptyResponse(t *testing.T) {
	client := &fakeChatClient{reply: "   "}
	generator := &ModelGenerator{Client: client}

	_, err := generator.Generate(context.Background(), prompt.Context{})
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("Generate() error = %T, want *Failure", err)
	}
}
