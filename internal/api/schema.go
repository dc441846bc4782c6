package api

import (
	"net/http"

	"github.com/sqlsage/sqlsage/internal/observability"
	"github.com/sqlsage/sqlsage/internal/schema"
)

type schemaResponse struct {
	Tables []schema.Table `json:"tables"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema source is not configured", false, nil)
		return
	}
	if err := requireRole(r, "analyst"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	current, err := deps.Schema.Discover(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_DISCOVERY_FAILED", "failed to discover backend schema", true, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, schemaResponse{Tables: current.SortedTables()})
}

func handleIndexRebuild(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil || deps.Index == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "INDEX_NOT_CONFIGURED", "index dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "admin"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	current, err := deps.Schema.Discover(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_DISCOVERY_FAILED", "failed to discover backend schema", true, map[string]any{"details": err.Error()})
		return
	}
	if err := deps.Index.Rebuild(r.Context(), current); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "INDEX_REBUILD_FAILED", "failed to rebuild schema index", true, map[string]any{"details": err.Error()})
		return
	}

	fragments := len(deps.Index.Fragments())
	observability.SetIndexFragments(fragments)
	observability.IncrementIndexRebuilds()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "rebuilt",
		"tables":    len(current.Tables),
		"fragments": fragments,
	})
}

func handleSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session store is not configured", false, nil)
		return
	}
	if err := requireRole(r, "analyst"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	id := r.PathValue("id")
	state, err := deps.Sessions.Get(id)
	if err != nil {
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error(), false, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"turns":      state.Tail(0),
	})
}
