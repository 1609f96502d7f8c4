package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"kitahub.org/internal/rbac"
)

type assignRoleRequest struct {
	RoleID    string     `json:"role_id"`
	GroupID   *string    `json:"group_id"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type createRoleRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	RoleType    string `json:"role_type"`
	SortOrder   int    `json:"sort_order"`
}

type setPermissionRequest struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Scope    string `json:"scope"`
	Active   *bool  `json:"active"`
}

func (a *API) handlePersonScoped(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/people/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	personID := parts[0]
	switch {
	case len(parts) == 2 && parts[1] == "roles":
		a.handleAssignRole(w, r, personID)
	case len(parts) == 3 && parts[1] == "roles":
		a.handleRevokeRole(w, r, personID, parts[2])
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleEffectivePermissions(w, r, personID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleAssignRole(w http.ResponseWriter, r *http.Request, personID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.requireAccess(w, r, "roles", rbac.ActionManage)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	assignment, err := a.rbac.AssignRole(r.Context(), rbac.AssignRoleParams{
		PersonID:     personID,
		RoleID:       req.RoleID,
		AssignedByID: principal.PersonID,
		GroupID:      req.GroupID,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/people/%s/roles/%s", personID, assignment.RoleID))
	writeJSON(w, http.StatusCreated, assignment)
}

func (a *API) handleRevokeRole(w http.ResponseWriter, r *http.Request, personID, roleID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if _, ok := a.requireAccess(w, r, "roles", rbac.ActionManage); !ok {
		return
	}
	var groupID *string
	if g := strings.TrimSpace(r.URL.Query().Get("group_id")); g != "" {
		groupID = &g
	}
	if err := a.rbac.RevokeRole(r.Context(), personID, roleID, groupID); err != nil {
		handleRBACError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleEffectivePermissions(w http.ResponseWriter, r *http.Request, personID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAccess(w, r, "roles", rbac.ActionRead); !ok {
		return
	}
	perms, err := a.rbac.ListEffectivePermissions(r.Context(), personID)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	if perms == nil {
		perms = []rbac.EffectivePermission{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"person_id":   personID,
		"permissions": perms,
	})
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.requireAccess(w, r, "roles", rbac.ActionRead); !ok {
			return
		}
		roles, err := a.rbac.ListRoles(r.Context())
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		if roles == nil {
			roles = []rbac.Role{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		if _, ok := a.requireAccess(w, r, "roles", rbac.ActionManage); !ok {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.rbac.CreateRole(r.Context(), rbac.Role{
			Name:        req.Name,
			DisplayName: req.DisplayName,
			RoleType:    rbac.RoleType(req.RoleType),
			SortOrder:   req.SortOrder,
		})
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	roleID := parts[0]
	switch {
	case len(parts) == 1:
		a.handleDeleteRole(w, r, roleID)
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleSetPermission(w, r, roleID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleDeleteRole(w http.ResponseWriter, r *http.Request, roleID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if _, ok := a.requireAccess(w, r, "roles", rbac.ActionManage); !ok {
		return
	}
	if err := a.rbac.DeleteRole(r.Context(), roleID); err != nil {
		handleRBACError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSetPermission(w http.ResponseWriter, r *http.Request, roleID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if _, ok := a.requireAccess(w, r, "roles", rbac.ActionManage); !ok {
		return
	}
	var req setPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	perm, err := a.rbac.SetPermission(r.Context(), rbac.Permission{
		RoleID:   roleID,
		Resource: req.Resource,
		Action:   rbac.Action(strings.ToLower(strings.TrimSpace(req.Action))),
		Scope:    rbac.Scope(strings.ToLower(strings.TrimSpace(req.Scope))),
		Active:   active,
	})
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perm)
}
