package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kitahub.org/internal/audit"
	"kitahub.org/internal/rbac"
)

// handleAuditList is the read-only reporting projection over the audit log.
func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.auditLog == nil {
		writeError(w, r, http.StatusServiceUnavailable, "audit log unavailable")
		return
	}
	if _, ok := a.requireAccess(w, r, "audit", rbac.ActionRead); !ok {
		return
	}

	q := audit.Query{}
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "from must be RFC 3339")
			return
		}
		q.From = t
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "to must be RFC 3339")
			return
		}
		q.To = t
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("action")); raw != "" {
		q.Action = audit.Action(raw)
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("success")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "success must be a boolean")
			return
		}
		q.Success = &v
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 0, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	q.Limit = limit

	entries, err := a.auditLog.List(r.Context(), q)
	if err != nil {
		if errors.Is(err, audit.ErrInvalidEntry) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "audit query failed")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": entries,
		"as_of": time.Now().UTC(),
	})
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between 1 and 1000")
	}
	return val, nil
}
