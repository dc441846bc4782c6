package generate

import (
	"context"
	"strings"

	"github.com/sqlsage/sqlsage/internal/llm"
)

const expandSystemPrompt = `You rephrase data analysis questions. Given a question, produce up to 3 alternative phrasings that mean the same thing, using different SQL-related vocabulary. One per line, nothing else.`

// Expander widens retrieval by asking the model for alternative
// phrasings of the question. Any failure degrades to the original
// question alone; expansion is never load-bearing.
type Expander struct {
	Client llm.ChatClient
}

func (e *Expander) Expand(ctx context.Context, question string) []string {
	queries := []string{question}
	if e == nil || e.Client == nil {
		return queries
	}

	raw, err := e.Client.Complete(ctx, llm.ChatRequest{
		System:      expandSystemPrompt,
		User:        question,
		Temperature: 0.3,
	})
	if err != nil {
		return queries
	}

	for _, line := range strings.Split(raw, "\n") {
		alt := strings.TrimSpace(line)
		alt = strings.TrimLeft(alt, "0123456789.-) ")
		if alt == "" || strings.EqualFold(alt, question) {
			continue
		}
		queries = append(queries, alt)
		if len(queries) == 4 {
			break
		}
	}
	return queries
}
