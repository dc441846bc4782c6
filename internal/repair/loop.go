// Package repair orchestrates generation, validation, and execution of
// candidate queries with a bounded retry budget. Execution errors are
// threaded back into the next prompt; everything else terminates the
// loop immediately.
package repair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sqlsage/sqlsage/internal/execute"
	"github.com/sqlsage/sqlsage/internal/generate"
	"github.com/sqlsage/sqlsage/internal/index"
	"github.com/sqlsage/sqlsage/internal/observability"
	"github.com/sqlsage/sqlsage/internal/prompt"
	"github.com/sqlsage/sqlsage/internal/session"
	"github.com/sqlsage/sqlsage/internal/validate"
)

type State string

const (
	StateGenerating State = "generating"
	StateValidating State = "validating"
	StateExecuting  State = "executing"
	StateRetrying   State = "retrying"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

const (
	DefaultMaxAttempts = 3
	DefaultTopK        = 5
	defaultTailTurns   = 5
)

// ErrDeadline reports that the caller's deadline expired mid-loop.
// Distinct from execute.ErrTimeout, which bounds one statement.
var ErrDeadline = errors.New("repair: deadline exceeded before the loop finished")

// BudgetExhaustedError is terminal after maxAttempts execution
// failures. LastErr is the final attempt's execution error.
type BudgetExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("repair: budget exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *BudgetExhaustedError) Unwrap() error { return e.LastErr }

// Attempt is one immutable entry of the attempt log.
type Attempt struct {
	Number      int             `json:"number"`
	SQL         string          `json:"sql"`
	Warnings    []string        `json:"warnings,omitempty"`
	Result      *execute.Result `json:"result,omitempty"`
	ErrorDetail string          `json:"error_detail,omitempty"`
}

// Outcome always carries the full attempt log; terminal failures
// include the last attempted query and its verbatim error.
type Outcome struct {
	State    State
	FinalSQL string
	Result   execute.Result
	Attempts []Attempt
}

type Retriever interface {
	Retrieve(ctx context.Context, queryText string, k int) ([]index.Fragment, error)
}

// Loop wires the pipeline. One Loop serves one backend/index pair;
// independent sessions may share it because Run keeps all per-request
// state on the stack.
type Loop struct {
	Retriever Retriever
	Assembler *prompt.Assembler
	Generator generate.Generator
	Validator *validate.Validator
	Executor  execute.Executor

	// Expander is optional; nil means retrieval uses the question
	// as-is.
	Expander *generate.Expander

	MaxAttempts int
	TopK        int
	Logger      *slog.Logger
}

// Run processes one question. Strictly sequential: each attempt's
// prompt depends on the previous attempt's error, so nothing can run
// in parallel. The caller's ctx deadline bounds the whole loop.
func (l *Loop) Run(ctx context.Context, question string, sess *session.State) (Outcome, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxAttempts := l.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	hits, err := l.retrieveHits(ctx, question)
	if err != nil {
		return Outcome{State: StateFailed}, err
	}

	var tail []session.Turn
	if sess != nil {
		tail = sess.Tail(defaultTailTurns)
	}

	var (
		attempts  []Attempt
		failedSQL string
		feedback  string
	)
	counter := 1

	for {
		if ctx.Err() != nil {
			return Outcome{State: StateFailed, FinalSQL: failedSQL, Attempts: attempts}, ErrDeadline
		}

		pctx := l.Assembler.Assemble(prompt.Input{
			Question:      question,
			Hits:          hits,
			Tail:          tail,
			FailedSQL:     failedSQL,
			ErrorFeedback: feedback,
		})

		logger.DebugContext(ctx, "generating candidate query",
			slog.Int("attempt", counter),
			slog.Int("max_attempts", maxAttempts),
		)
		generateStart := time.Now()
		sqlText, err := l.Generator.Generate(ctx, pctx)
		observability.ObserveGenerationLatency(time.Since(generateStart))
		if err != nil {
			if ctx.Err() != nil {
				attempts = append(attempts, Attempt{Number: counter, ErrorDetail: ErrDeadline.Error()})
				return Outcome{State: StateFailed, Attempts: attempts}, ErrDeadline
			}
			// Infra fault, not a wrong query: surfaces immediately and
			// leaves the repair budget untouched.
			attempts = append(attempts, Attempt{Number: counter, ErrorDetail: err.Error()})
			return Outcome{State: StateFailed, Attempts: attempts}, err
		}

		validation, err := l.Validator.Validate(sqlText)
		if err != nil {
			attempts = append(attempts, Attempt{Number: counter, SQL: sqlText, ErrorDetail: err.Error()})
			logger.WarnContext(ctx, "candidate rejected by validation",
				slog.Int("attempt", counter),
				slog.String("error", err.Error()),
			)
			return Outcome{State: StateFailed, FinalSQL: sqlText, Attempts: attempts}, err
		}

		executeStart := time.Now()
		result, err := l.Executor.Execute(ctx, sqlText)
		if err == nil {
			observability.ObserveExecutionLatency(result.Elapsed)
			attempts = append(attempts, Attempt{
				Number:   counter,
				SQL:      sqlText,
				Warnings: validation.Warnings,
				Result:   &result,
			})
			logger.InfoContext(ctx, "query succeeded",
				slog.Int("attempt", counter),
				slog.Int("rows", len(result.Rows)),
			)
			return Outcome{State: StateSucceeded, FinalSQL: sqlText, Result: result, Attempts: attempts}, nil
		}

		observability.ObserveExecutionLatency(time.Since(executeStart))
		attempts = append(attempts, Attempt{
			Number:      counter,
			SQL:         sqlText,
			Warnings:    validation.Warnings,
			ErrorDetail: err.Error(),
		})

		var queryErr *execute.QueryError
		switch {
		case ctx.Err() != nil:
			return Outcome{State: StateFailed, FinalSQL: sqlText, Attempts: attempts}, ErrDeadline
		case errors.Is(err, execute.ErrTimeout):
			return Outcome{State: StateFailed, FinalSQL: sqlText, Attempts: attempts}, err
		case errors.As(err, &queryErr):
			if counter == maxAttempts {
				logger.WarnContext(ctx, "repair budget exhausted",
					slog.Int("attempts", counter),
					slog.String("last_error", queryErr.Message),
				)
				return Outcome{State: StateFailed, FinalSQL: sqlText, Attempts: attempts},
					&BudgetExhaustedError{Attempts: counter, LastErr: queryErr}
			}
			logger.InfoContext(ctx, "execution failed, retrying",
				slog.Int("attempt", counter),
				slog.String("error", queryErr.Message),
			)
			counter++
			failedSQL = sqlText
			// Most recent feedback supersedes older feedback.
			feedback = queryErr.Message
		default:
			return Outcome{State: StateFailed, FinalSQL: sqlText, Attempts: attempts}, err
		}
	}
}

// retrieveHits merges retrieval over the question and up to one
// expanded phrasing, deduplicating by fragment ID in rank order.
func (l *Loop) retrieveHits(ctx context.Context, question string) ([]index.Fragment, error) {
	topK := l.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	queries := []string{question}
	if l.Expander != nil {
		expanded := l.Expander.Expand(ctx, question)
		if len(expanded) > 2 {
			expanded = expanded[:2]
		}
		queries = expanded
	}

	seen := map[string]struct{}{}
	var merged []index.Fragment
	for _, query := range queries {
		hits, err := l.Retriever.Retrieve(ctx, query, topK)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			if _, ok := seen[hit.ID]; ok {
				continue
			}
			seen[hit.ID] = struct{}{}
			merged = append(merged, hit)
		}
	}
	return merged, nil
}
