package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sqlsage/sqlsage/internal/archive"
	"github.com/sqlsage/sqlsage/internal/execute"
	"github.com/sqlsage/sqlsage/internal/generate"
	"github.com/sqlsage/sqlsage/internal/index"
	"github.com/sqlsage/sqlsage/internal/observability"
	"github.com/sqlsage/sqlsage/internal/repair"
	"github.com/sqlsage/sqlsage/internal/session"
	"github.com/sqlsage/sqlsage/internal/suggest"
	"github.com/sqlsage/sqlsage/internal/validate"
)

type askRequest struct {
	Question    string `json:"question"`
	SessionID   string `json:"session_id"`
	BypassCache bool   `json:"bypass_cache"`
}

type askResponse struct {
	State       string           `json:"state"`
	SQL         string           `json:"sql"`
	Columns     []string         `json:"columns"`
	Rows        [][]any          `json:"rows"`
	Attempts    []repair.Attempt `json:"attempts"`
	Insight     string           `json:"insight,omitempty"`
	Suggestions []string         `json:"suggestions,omitempty"`
	Explanation []string         `json:"explanation,omitempty"`
	Cached      bool             `json:"cached"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Loop == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "ask dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "analyst"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}

	question := strings.TrimSpace(request.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	// Session context shapes the prompt, so cached answers are only
	// served for stateless requests.
	cacheable := deps.Cache != nil && request.SessionID == "" && !request.BypassCache
	if cacheable {
		if payload, ok, err := deps.Cache.Get(r.Context(), question); err == nil && ok {
			observability.ObserveCacheLookup(true)
			var response askResponse
			if err := json.Unmarshal(payload, &response); err == nil {
				response.Cached = true
				writeJSON(w, http.StatusOK, response)
				return
			}
		} else {
			observability.ObserveCacheLookup(false)
		}
	}

	var sess *session.State
	if request.SessionID != "" {
		if deps.Sessions == nil {
			writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session store is not configured", false, nil)
			return
		}
		sess = deps.Sessions.GetOrCreate(request.SessionID)
	}

	ctx := r.Context()
	if deps.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deps.RequestTimeout)
		defer cancel()
	}

	outcome, err := deps.Loop.Run(ctx, question, sess)
	observability.ObserveAskOutcome(string(outcome.State), len(outcome.Attempts))
	archiveOutcome(deps, question, outcome)

	if err != nil {
		writeAskFailure(r.Context(), w, outcome, err)
		return
	}

	if sess != nil {
		sess.Append(session.Turn{
			Question:      question,
			SQL:           outcome.FinalSQL,
			ResultSummary: fmt.Sprintf("%d rows", len(outcome.Result.Rows)),
		})
	}

	response := askResponse{
		State:       string(outcome.State),
		SQL:         outcome.FinalSQL,
		Columns:     outcome.Result.Columns,
		Rows:        outcome.Result.Rows,
		Attempts:    outcome.Attempts,
		Suggestions: suggest.Hints(outcome.FinalSQL),
		Explanation: suggest.Breakdown(outcome.FinalSQL),
	}
	if deps.Summarizer != nil {
		insightText, err := deps.Summarizer.Summarize(r.Context(), question, outcome.FinalSQL, outcome.Result)
		if err != nil {
			if deps.Logger != nil {
				deps.Logger.WarnContext(r.Context(), "insight summary failed", slog.String("error", err.Error()))
			}
		} else {
			response.Insight = insightText
		}
	}

	if cacheable {
		if payload, err := json.Marshal(response); err == nil {
			_ = deps.Cache.Set(r.Context(), question, payload)
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func writeAskFailure(ctx context.Context, w http.ResponseWriter, outcome repair.Outcome, err error) {
	extra := map[string]any{
		"state":    string(outcome.State),
		"attempts": outcome.Attempts,
	}
	if outcome.FinalSQL != "" {
		extra["final_sql"] = outcome.FinalSQL
	}

	var (
		genErr    *generate.Failure
		fatalErr  *validate.FatalError
		budgetErr *repair.BudgetExhaustedError
		embedErr  *index.EmbeddingError
	)
	switch {
	case errors.Is(err, repair.ErrDeadline):
		writeError(ctx, w, http.StatusGatewayTimeout, "DEADLINE_EXCEEDED", err.Error(), true, extra)
	case errors.Is(err, execute.ErrTimeout):
		writeError(ctx, w, http.StatusGatewayTimeout, "EXECUTION_TIMEOUT", err.Error(), true, extra)
	case errors.As(err, &budgetErr):
		writeError(ctx, w, http.StatusUnprocessableEntity, "REPAIR_BUDGET_EXHAUSTED", err.Error(), false, extra)
	case errors.As(err, &fatalErr):
		writeError(ctx, w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error(), false, extra)
	case errors.As(err, &genErr):
		writeError(ctx, w, http.StatusBadGateway, "GENERATION_FAILED", err.Error(), true, extra)
	case errors.As(err, &embedErr), errors.Is(err, index.ErrEmptySchema):
		writeError(ctx, w, http.StatusBadGateway, "RETRIEVAL_FAILED", err.Error(), true, extra)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "ASK_FAILED", err.Error(), false, extra)
	}
}

// archiveOutcome runs off the request path; archive errors are
// log-only and never affect the response.
func archiveOutcome(deps Dependencies, question string, outcome repair.Outcome) {
	if deps.Archiver == nil || len(outcome.Attempts) == 0 {
		return
	}
	record := archive.Record{
		RequestID:  newRequestID(),
		Question:   question,
		State:      string(outcome.State),
		FinalSQL:   outcome.FinalSQL,
		Attempts:   outcome.Attempts,
		FinishedAt: time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := deps.Archiver.Archive(ctx, record); err != nil && deps.Logger != nil {
			deps.Logger.Warn("attempt archive failed",
				slog.String("request_id", record.RequestID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func newRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
