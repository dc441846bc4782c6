package api

import (
	"net/http"

	"github.com/sqlsage/sqlsage/internal/template"
)

func handleTemplates(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, "analyst"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	if category := r.URL.Query().Get("category"); category != "" {
		templates := template.ByCategory(category)
		if len(templates) == 0 {
			writeError(r.Context(), w, http.StatusNotFound, "CATEGORY_NOT_FOUND", "no templates in category "+category, false, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"templates":  template.List(),
		"categories": template.Categories(),
	})
}

func handleTemplateByID(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, "analyst"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	tpl, ok := template.Get(r.PathValue("id"))
	if !ok {
		writeError(r.Context(), w, http.StatusNotFound, "TEMPLATE_NOT_FOUND", "unknown template id", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}
