// Package insight produces a short natural-language reading of query
// results for downstream consumers. Optional: a failed summary never
// fails the request.
package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/sqlsage/sqlsage/internal/execute"
	"github.com/sqlsage/sqlsage/internal/llm"
)

const summarySystemPrompt = `You summarize SQL query results for analysts. Answer the user's question directly from the data, then note key findings or anomalies. 3-5 sentences, no markdown.`

const previewRows = 10

type Summarizer struct {
	Client llm.ChatClient
}

func (s *Summarizer) Summarize(ctx context.Context, question, sqlText string, result execute.Result) (string, error) {
	if len(result.Rows) == 0 {
		return "No results found for this query.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nSQL:\n%s\n\n", question, sqlText)
	fmt.Fprintf(&b, "Found %d rows.\nColumns: %s\n\nFirst rows:\n", len(result.Rows), strings.Join(result.Columns, ", "))
	for i, row := range result.Rows {
		if i == previewRows {
			break
		}
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = fmt.Sprintf("%v", cell)
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}

	summary, err := s.Client.Complete(ctx, llm.ChatRequest{
		System:      summarySystemPrompt,
		User:        b.String(),
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("summarize results: %w", err)
	}
	return strings.TrimSpace(summary), nil
}
