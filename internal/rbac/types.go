// Package rbac decides whether a principal may perform an action on a
// resource. Roles grant permissions; assignments bind people to roles,
// optionally restricted to one group and optionally time-limited.
package rbac

import (
	"fmt"
	"strings"
	"time"
)

// RoleType is the closed set of built-in role kinds plus "custom". A role's
// actual capabilities always come from its permission rows, never from a
// type switch on this value.
type RoleType string

const (
	RoleTypeDirector  RoleType = "director"
	RoleTypeTeacher   RoleType = "teacher"
	RoleTypeAssistant RoleType = "assistant"
	RoleTypeStaff     RoleType = "staff"
	RoleTypeParent    RoleType = "parent"
	RoleTypeCustom    RoleType = "custom"
)

// ParseRoleType normalizes and validates a role type string.
func ParseRoleType(raw string) (RoleType, error) {
	t := RoleType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case RoleTypeDirector, RoleTypeTeacher, RoleTypeAssistant, RoleTypeStaff, RoleTypeParent, RoleTypeCustom:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown role type %q", ErrInvalidInput, raw)
}

// Action is a permission verb.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage:
		return true
	}
	return false
}

// Scope is the breadth of a grant. ScopeNone is only ever a resolution
// result, never stored on a permission row.
type Scope string

const (
	ScopeAll   Scope = "all"
	ScopeGroup Scope = "group"
	ScopeOwn   Scope = "own"
	ScopeNone  Scope = ""
)

func (s Scope) Valid() bool {
	switch s {
	case ScopeAll, ScopeGroup, ScopeOwn:
		return true
	}
	return false
}

// Role groups permissions under a machine key.
type Role struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DisplayName  string    `json:"display_name"`
	RoleType     RoleType  `json:"role_type"`
	IsSystemRole bool      `json:"is_system_role"`
	Active       bool      `json:"active"`
	SortOrder    int       `json:"sort_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Permission grants an action on a resource at a scope. Unique per
// (role, resource, action); writes are upserts on that key.
type Permission struct {
	ID        string    `json:"id"`
	RoleID    string    `json:"role_id"`
	Resource  string    `json:"resource"`
	Action    Action    `json:"action"`
	Scope     Scope     `json:"scope"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Assignment binds a person to a role. A nil GroupID means the assignment is
// not restricted to one group: group-scoped permissions then match any
// target group. (The permissive reading of an ambiguous upstream rule —
// revisit before hardening into a safety-critical default.)
//
// An assignment past ExpiresAt is inert for resolution but stays in storage;
// purging is a maintenance concern, not ours.
type Assignment struct {
	ID           string     `json:"id"`
	PersonID     string     `json:"person_id"`
	RoleID       string     `json:"role_id"`
	GroupID      *string    `json:"group_id,omitempty"`
	AssignedByID string     `json:"assigned_by_id"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Decision is the outcome of a resolution.
type Decision struct {
	Allowed      bool  `json:"allowed"`
	MatchedScope Scope `json:"matched_scope,omitempty"`
}

// Context narrows a resolution to a target group and carries the ownership
// flag. Ownership is established by the caller before resolve; the resolver
// trusts the flag it is given.
type Context struct {
	TargetGroupID *string
	IsOwner       bool
}

// EffectivePermission is a read-only projection row for display.
type EffectivePermission struct {
	RoleID    string     `json:"role_id"`
	RoleName  string     `json:"role_name"`
	Resource  string     `json:"resource"`
	Action    Action     `json:"action"`
	Scope     Scope      `json:"scope"`
	GroupID   *string    `json:"group_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
