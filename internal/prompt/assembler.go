// Package prompt assembles the bounded model context: retrieval hits,
// conversation tail, and error feedback around the current question.
package prompt

import (
	"fmt"
	"strings"

	"github.com/sqlsage/sqlsage/internal/index"
	"github.com/sqlsage/sqlsage/internal/session"
)

const DefaultBudget = 12000

const systemPrompt = `You are an expert SQL analyst. You convert natural language questions about a relational database into a single read-only SQL query.
Rules:
- Use only tables and columns from the provided schema context.
- Use JOINs over foreign keys when the question spans tables.
- Include GROUP BY with aggregations, and ORDER BY with LIMIT for top-N questions.
- Never write INSERT, UPDATE, DELETE, DROP, ALTER, or TRUNCATE statements.
- Return ONLY the SQL query. No markdown, no explanation.`

type Input struct {
	Question string
	Hits     []index.Fragment
	Tail     []session.Turn

	// FailedSQL and ErrorFeedback carry the most recent execution
	// failure on the repair path. Empty on the first attempt.
	FailedSQL     string
	ErrorFeedback string
}

type Context struct {
	System string
	User   string
}

// Assembler enforces a rune budget over the user prompt. The current
// question and the most recent error feedback are never dropped; under
// pressure the conversation tail is truncated first (oldest turns
// first), then retrieval hits (lowest-ranked first).
type Assembler struct {
	Budget  int
	Dialect string
}

func (a *Assembler) Assemble(in Input) Context {
	budget := a.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}

	question := renderQuestion(in.Question, a.Dialect)
	feedback := renderFeedback(in.FailedSQL, in.ErrorFeedback)

	remaining := budget - runeLen(question) - runeLen(feedback)

	schemaSection, remaining := renderHits(in.Hits, remaining)
	conversationSection := renderTail(in.Tail, remaining)

	var b strings.Builder
	if schemaSection != "" {
		b.WriteString(schemaSection)
	}
	if conversationSection != "" {
		b.WriteString(conversationSection)
	}
	if feedback != "" {
		b.WriteString(feedback)
	}
	b.WriteString(question)

	return Context{System: systemPrompt, User: b.String()}
}

func renderQuestion(question, dialect string) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n")
	if dialect != "" {
		fmt.Fprintf(&b, "Write the query in %s syntax.\n", dialect)
	}
	b.WriteString("Respond with the SQL query only.\n")
	return b.String()
}

func renderFeedback(failedSQL, errorFeedback string) string {
	if strings.TrimSpace(errorFeedback) == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("The previous attempt failed and must be corrected.\n")
	if strings.TrimSpace(failedSQL) != "" {
		fmt.Fprintf(&b, "Failed query:\n%s\n", strings.TrimSpace(failedSQL))
	}
	fmt.Fprintf(&b, "Database error:\n%s\n", strings.TrimSpace(errorFeedback))
	b.WriteString("Fix the query so it executes successfully. Column and table names must match the schema exactly.\n\n")
	return b.String()
}

// renderHits appends fragments in rank order until the budget runs out
// and returns the leftover budget for the conversation tail.
func renderHits(hits []index.Fragment, budget int) (string, int) {
	if len(hits) == 0 || budget <= 0 {
		return "", budget
	}
	var b strings.Builder
	header := "Database schema context:\n"
	if runeLen(header) > budget {
		return "", budget
	}
	b.WriteString(header)
	budget -= runeLen(header)

	for _, hit := range hits {
		piece := hit.Text + "\n"
		if runeLen(piece) > budget {
			break
		}
		b.WriteString(piece)
		budget -= runeLen(piece)
	}
	return b.String(), budget
}

// renderTail keeps the most recent turns that fit, rendered oldest
// first so the model reads the conversation in order.
func renderTail(tail []session.Turn, budget int) string {
	if len(tail) == 0 || budget <= 0 {
		return ""
	}
	header := "Previous conversation:\n"
	budget -= runeLen(header)

	kept := make([]string, 0, len(tail))
	for i := len(tail) - 1; i >= 0; i-- {
		piece := renderTurn(tail[i])
		if runeLen(piece) > budget {
			break
		}
		kept = append(kept, piece)
		budget -= runeLen(piece)
	}
	if len(kept) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(header)
	for i := len(kept) - 1; i >= 0; i-- {
		b.WriteString(kept[i])
	}
	b.WriteString("\n")
	return b.String()
}

func renderTurn(turn session.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Q: %s\n", turn.Question)
	if turn.SQL != "" {
		fmt.Fprintf(&b, "SQL: %s\n", turn.SQL)
	}
	if turn.ResultSummary != "" {
		fmt.Fprintf(&b, "Result: %s\n", turn.ResultSummary)
	}
	return b.String()
}

func runeLen(s string) int {
	return len([]rune(s))
}
