// Package execute runs candidate queries against the relational
// backend over read-only connection semantics and normalizes the
// outcome for the repair loop.
package execute

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrTimeout reports that a single attempt exceeded the executor's
// statement timeout. Distinct from the caller's overall deadline.
var ErrTimeout = errors.New("query execution timed out")

// QueryError carries the backend's native error text verbatim. The
// repair loop threads Message back into the next generation prompt, so
// it must not be rewritten or classified here.
type QueryError struct {
	Message string
}

func (e *QueryError) Error() string { return e.Message }

type Result struct {
	Columns []string      `json:"columns"`
	Rows    [][]any       `json:"rows"`
	Elapsed time.Duration `json:"-"`
}

type Executor interface {
	Execute(ctx context.Context, sqlText string) (Result, error)
}

// SQLExecutor executes through database/sql using QueryContext only;
// it never issues writes.
type SQLExecutor struct {
	db      *sql.DB
	timeout time.Duration
	maxRows int
}

func NewSQLExecutor(db *sql.DB, timeout time.Duration, maxRows int) *SQLExecutor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxRows <= 0 {
		maxRows = 1000
	}
	return &SQLExecutor{db: db, timeout: timeout, maxRows: maxRows}
}

func (e *SQLExecutor) Execute(ctx context.Context, sqlText string) (Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	rows, err := e.db.QueryContext(attemptCtx, sqlText)
	if err != nil {
		return Result{}, e.classify(ctx, attemptCtx, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, e.classify(ctx, attemptCtx, err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		if len(resultRows) == e.maxRows {
			break
		}
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return Result{}, e.classify(ctx, attemptCtx, err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, e.classify(ctx, attemptCtx, err)
	}

	return Result{Columns: columns, Rows: resultRows, Elapsed: time.Since(start)}, nil
}

// classify separates the three outcomes of a failed attempt: the
// caller's deadline expired (propagate), the per-attempt timeout fired
// (ErrTimeout), or the backend rejected the query (QueryError with the
// backend text verbatim).
func (e *SQLExecutor) classify(parent, attempt context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(attempt.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return &QueryError{Message: err.Error()}
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
