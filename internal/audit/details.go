package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// Details is the closed union of per-action payloads. The union is keyed by
// the entry's Action; serialization to JSON happens only at the storage
// boundary, so readers get typed payloads back.
type Details interface {
	isAuditDetails()
}

// SessionDetails accompanies login and logout.
type SessionDetails struct {
	TokenID string `json:"token_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// AccessDetails accompanies access_granted and access_denied.
type AccessDetails struct {
	Resource      string  `json:"resource"`
	Action        string  `json:"action"`
	MatchedScope  string  `json:"matched_scope,omitempty"`
	TargetGroupID *string `json:"target_group_id,omitempty"`
	IsOwner       bool    `json:"is_owner,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

// DataDetails accompanies the data_* actions recorded by the surrounding
// CRUD layers.
type DataDetails struct {
	Entity string   `json:"entity,omitempty"`
	Fields []string `json:"fields,omitempty"`
}

// RoleChangeDetails accompanies role_assigned and role_revoked.
type RoleChangeDetails struct {
	RoleID       string     `json:"role_id"`
	GroupID      *string    `json:"group_id,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	AssignedByID string     `json:"assigned_by_id,omitempty"`
}

func (SessionDetails) isAuditDetails()    {}
func (AccessDetails) isAuditDetails()     {}
func (DataDetails) isAuditDetails()       {}
func (RoleChangeDetails) isAuditDetails() {}

// MatchesAction reports whether the payload type is the right union member
// for the action.
func MatchesAction(action Action, d Details) bool {
	if d == nil {
		return true
	}
	switch d.(type) {
	case SessionDetails, *SessionDetails:
		return action == ActionLogin || action == ActionLogout
	case AccessDetails, *AccessDetails:
		return action == ActionAccessGranted || action == ActionAccessDenied
	case DataDetails, *DataDetails:
		switch action {
		case ActionDataRead, ActionDataCreate, ActionDataUpdate, ActionDataDelete:
			return true
		}
		return false
	case RoleChangeDetails, *RoleChangeDetails:
		return action == ActionRoleAssigned || action == ActionRoleRevoked
	}
	return false
}

// MarshalDetails encodes a payload for storage. Nil encodes as an empty
// object.
func MarshalDetails(d Details) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// UnmarshalDetails decodes a stored payload into the union member the
// action dictates.
func UnmarshalDetails(action Action, raw []byte) (Details, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	decode := func(v Details) (Details, error) {
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("audit: decode %s details: %w", action, err)
		}
		return v, nil
	}
	switch action {
	case ActionLogin, ActionLogout:
		d := &SessionDetails{}
		return decode(d)
	case ActionAccessGranted, ActionAccessDenied:
		d := &AccessDetails{}
		return decode(d)
	case ActionDataRead, ActionDataCreate, ActionDataUpdate, ActionDataDelete:
		d := &DataDetails{}
		return decode(d)
	case ActionRoleAssigned, ActionRoleRevoked:
		d := &RoleChangeDetails{}
		return decode(d)
	}
	return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidEntry, action)
}
