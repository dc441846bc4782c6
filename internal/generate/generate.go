// Package generate turns an assembled context into a candidate SQL
// query through the chat model, extracting the statement defensively
// from whatever the model returns.
package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/sqlsage/sqlsage/internal/llm"
	"github.com/sqlsage/sqlsage/internal/prompt"
)

// Failure is the closed generation error class: unreachable model,
// rate limit, empty or malformed response. It never consumes repair
// budget.
type Failure struct {
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("generate: %s: %v", f.Reason, f.Err)
	}
	return fmt.Sprintf("generate: %s", f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }

type Generator interface {
	Generate(ctx context.Context, pctx prompt.Context) (string, error)
}

// ModelGenerator wraps the chat model client.
type ModelGenerator struct {
	Client      llm.ChatClient
	Temperature float64
}

func (g *ModelGenerator) Generate(ctx context.Context, pctx prompt.Context) (string, error) {
	raw, err := g.Client.Complete(ctx, llm.ChatRequest{
		System:      pctx.System,
		User:        pctx.User,
		Temperature: g.Temperature,
	})
	if err != nil {
		return "", &Failure{Reason: "model request failed", Err: err}
	}

	sql := ExtractSQL(raw)
	if sql == "" {
		return "", &Failure{Reason: "model returned no statement"}
	}
	return sql, nil
}

// statementKeywords mark where a SQL statement can begin. Mutating
// keywords are included on purpose: extraction must surface a mutating
// candidate so validation can reject it, not silently drop it.
var statementKeywords = []string{
	"select", "with", "insert", "update", "delete",
	"drop", "alter", "truncate", "create", "pragma",
}

// ExtractSQL locates the outermost statement boundaries in raw model
// output. Models wrap queries in prose and code fences; assuming the
// response is pure SQL breaks on the first chatty reply.
func ExtractSQL(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}

	if fenced := extractFenced(text); fenced != "" {
		text = fenced
	}

	start := statementStart(text)
	if start >= 0 {
		text = text[start:]
	}
	text = cutAtStatementEnd(text)
	return strings.TrimSpace(text)
}

// extractFenced returns the body of the first code fence, or "".
func extractFenced(text string) string {
	open := strings.Index(text, "```")
	if open < 0 {
		return ""
	}
	rest := text[open+3:]
	if newline := strings.IndexByte(rest, '\n'); newline >= 0 {
		// Drop a language tag such as ```sql on the fence line.
		tag := strings.TrimSpace(rest[:newline])
		if tag == "" || len(tag) <= 10 && !strings.ContainsAny(tag, " \t") {
			rest = rest[newline+1:]
		}
	}
	if closing := strings.Index(rest, "```"); closing >= 0 {
		rest = rest[:closing]
	}
	return strings.TrimSpace(rest)
}

// statementStart finds the earliest word-boundary occurrence of any
// statement keyword, case-insensitive. Returns -1 when none appears.
func statementStart(text string) int {
	lower := strings.ToLower(text)
	best := -1
	for _, keyword := range statementKeywords {
		from := 0
		for {
			i := strings.Index(lower[from:], keyword)
			if i < 0 {
				break
			}
			pos := from + i
			if isWordBoundary(lower, pos, len(keyword)) {
				if best < 0 || pos < best {
					best = pos
				}
				break
			}
			from = pos + len(keyword)
		}
	}
	return best
}

func isWordBoundary(text string, pos, length int) bool {
	if pos > 0 && isWordByte(text[pos-1]) {
		return false
	}
	end := pos + length
	if end < len(text) && isWordByte(text[end]) {
		return false
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// cutAtStatementEnd truncates at the first semicolon outside quotes.
func cutAtStatementEnd(text string) string {
	var inSingle, inDouble bool
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case ';':
			if !inSingle && !inDouble {
				return text[:i]
			}
		}
	}
	return text
}
