// Package llm talks to OpenAI-compatible chat and embedding endpoints.
// The model is an opaque collaborator: callers see text in, text or
// vectors out, and an error for everything else.
package llm

import "context"

type ChatRequest struct {
	System      string
	User        string
	Temperature float64
}

type ChatClient interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
