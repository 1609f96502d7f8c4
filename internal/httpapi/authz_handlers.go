package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"kitahub.org/internal/audit"
	"kitahub.org/internal/auth"
	"kitahub.org/internal/obs"
	"kitahub.org/internal/rbac"
	"kitahub.org/internal/revocation"
)

type authzCheckRequest struct {
	Resource      string  `json:"resource"`
	Action        string  `json:"action"`
	TargetGroupID *string `json:"target_group_id"`
	IsOwner       bool    `json:"is_owner"`
}

type authzCheckResponse struct {
	Allowed      bool   `json:"allowed"`
	MatchedScope string `json:"matched_scope,omitempty"`
}

// handleAuthzCheck answers "may the caller do X on Y". The caller is always
// the authenticated principal; checking on behalf of someone else goes
// through the people endpoints.
func (a *API) handleAuthzCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req authzCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Resource = strings.ToLower(strings.TrimSpace(req.Resource))
	action := rbac.Action(strings.ToLower(strings.TrimSpace(req.Action)))
	if req.Resource == "" || !action.Valid() {
		writeError(w, r, http.StatusBadRequest, "resource and a valid action are required")
		return
	}

	decision, err := a.rbac.Authorize(r.Context(), principal.PersonID, req.Resource, action, rbac.Context{
		TargetGroupID: req.TargetGroupID,
		IsOwner:       req.IsOwner,
	})
	if err != nil {
		if errors.Is(err, audit.ErrWriteFailure) {
			writeError(w, r, http.StatusServiceUnavailable, "audit log unavailable")
			return
		}
		if errors.Is(err, rbac.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "authorization failed")
		return
	}
	obs.ObserveAuthzDecision(decision.Allowed, string(decision.MatchedScope))
	writeJSON(w, http.StatusOK, authzCheckResponse{
		Allowed:      decision.Allowed,
		MatchedScope: string(decision.MatchedScope),
	})
}

// handleSessionRevoke invalidates the presented token for the rest of its
// lifetime. Idempotent: revoking twice is still 204.
func (a *API) handleSessionRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.revocations == nil {
		writeError(w, r, http.StatusServiceUnavailable, "revocation store unavailable")
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	token, _ := auth.TokenFromContext(r.Context())

	ttl := time.Until(principal.ExpiresAt)
	id := revocation.Identity(token, principal.TokenID)
	if err := a.revocations.Add(r.Context(), id, principal.PersonID, ttl); err != nil {
		writeError(w, r, http.StatusInternalServerError, "revocation failed")
		return
	}
	if a.auditLog != nil {
		_ = a.auditLog.Append(r.Context(), audit.Entry{
			PersonID: principal.PersonID,
			Action:   audit.ActionLogout,
			Success:  true,
			Details:  audit.SessionDetails{TokenID: principal.TokenID},
		})
	}
	w.WriteHeader(http.StatusNoContent)
}
