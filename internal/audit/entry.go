// Package audit writes the append-only record of security-relevant events.
// Entries are created once and never mutated; the store contract has no
// update or delete. Retention-driven purges are an external batch job.
package audit

import (
	"context"
	"errors"
	"time"
)

// Action names an auditable event.
type Action string

const (
	ActionLogin         Action = "login"
	ActionLogout        Action = "logout"
	ActionAccessGranted Action = "access_granted"
	ActionAccessDenied  Action = "access_denied"
	ActionDataRead      Action = "data_read"
	ActionDataCreate    Action = "data_create"
	ActionDataUpdate    Action = "data_update"
	ActionDataDelete    Action = "data_delete"
	ActionRoleAssigned  Action = "role_assigned"
	ActionRoleRevoked   Action = "role_revoked"
)

func (a Action) Valid() bool {
	switch a {
	case ActionLogin, ActionLogout,
		ActionAccessGranted, ActionAccessDenied,
		ActionDataRead, ActionDataCreate, ActionDataUpdate, ActionDataDelete,
		ActionRoleAssigned, ActionRoleRevoked:
		return true
	}
	return false
}

var (
	// ErrWriteFailure marks a failed append. It is fatal on the access
	// decision paths: a decision the system cannot prove it logged must
	// not stand.
	ErrWriteFailure = errors.New("audit: write failure")

	ErrInvalidEntry = errors.New("audit: invalid entry")
)

// Entry is one immutable audit record. CreatedAt is stamped once on append.
type Entry struct {
	ID           string    `json:"id"`
	PersonID     string    `json:"person_id,omitempty"`
	Action       Action    `json:"action"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Details      Details   `json:"details,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	Success      bool      `json:"success"`
	CreatedAt    time.Time `json:"created_at"`
}

// Query filters the read-only reporting projection.
type Query struct {
	From    time.Time
	To      time.Time
	Action  Action
	Success *bool
	Limit   int
}

// Store persists entries. Append-only: there is no update or delete.
type Store interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, q Query) ([]Entry, error)
}
