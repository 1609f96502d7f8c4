package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kitahub.org/internal/audit"
	"kitahub.org/internal/ids"
)

// Service wraps the store with validation, resolution and audit. It holds
// no cross-request state.
type Service struct {
	store    Store
	resolver *Resolver
	log      *audit.Log
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, log *audit.Log, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("rbac: store is required")
	}
	if log == nil {
		return nil, errors.New("rbac: audit log is required")
	}
	s := &Service{store: store, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	resolver, err := NewResolver(store, s.now)
	if err != nil {
		return nil, err
	}
	s.resolver = resolver
	return s, nil
}

// Authorize resolves a decision and records it. If the audit append fails
// the computed decision is discarded and the caller gets a deny together
// with audit.ErrWriteFailure: a grant the system cannot prove it logged
// must not stand.
func (s *Service) Authorize(ctx context.Context, personID, resource string, action Action, rc Context) (Decision, error) {
	decision, resolveErr := s.resolver.Resolve(ctx, personID, resource, action, rc)

	entryAction := audit.ActionAccessDenied
	if decision.Allowed {
		entryAction = audit.ActionAccessGranted
	}
	reason := ""
	if resolveErr != nil {
		reason = "resolution failed"
	} else if !decision.Allowed {
		reason = "no matching permission"
	}
	auditErr := s.log.Append(ctx, audit.Entry{
		PersonID:     personID,
		Action:       entryAction,
		ResourceType: resource,
		Success:      decision.Allowed,
		Details: audit.AccessDetails{
			Resource:      resource,
			Action:        string(action),
			MatchedScope:  string(decision.MatchedScope),
			TargetGroupID: rc.TargetGroupID,
			IsOwner:       rc.IsOwner,
			Reason:        reason,
		},
	})
	if auditErr != nil {
		return Decision{Allowed: false, MatchedScope: ScopeNone}, auditErr
	}
	if resolveErr != nil {
		return Decision{Allowed: false, MatchedScope: ScopeNone}, resolveErr
	}
	return decision, nil
}

// AssignRoleParams carries a role grant.
type AssignRoleParams struct {
	PersonID     string
	RoleID       string
	AssignedByID string
	GroupID      *string
	ExpiresAt    *time.Time
}

// AssignRole grants a role, updating in place when the (person, role,
// group) binding already exists.
func (s *Service) AssignRole(ctx context.Context, p AssignRoleParams) (Assignment, error) {
	p.PersonID = strings.TrimSpace(p.PersonID)
	p.RoleID = strings.TrimSpace(p.RoleID)
	p.AssignedByID = strings.TrimSpace(p.AssignedByID)
	if p.PersonID == "" || p.RoleID == "" || p.AssignedByID == "" {
		return Assignment{}, fmt.Errorf("%w: person_id, role_id and assigned_by_id are required", ErrInvalidInput)
	}
	if p.GroupID != nil {
		trimmed := strings.TrimSpace(*p.GroupID)
		if trimmed == "" {
			p.GroupID = nil
		} else {
			p.GroupID = &trimmed
		}
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(s.now()) {
		return Assignment{}, fmt.Errorf("%w: expires_at must be in the future", ErrInvalidInput)
	}
	if _, err := s.store.GetRole(ctx, p.RoleID); err != nil {
		return Assignment{}, err
	}

	assignment, err := s.store.UpsertAssignment(ctx, Assignment{
		ID:           ids.New(),
		PersonID:     p.PersonID,
		RoleID:       p.RoleID,
		GroupID:      p.GroupID,
		AssignedByID: p.AssignedByID,
		ExpiresAt:    p.ExpiresAt,
		Active:       true,
	})
	if err != nil {
		return Assignment{}, err
	}

	if err := s.log.Append(ctx, audit.Entry{
		PersonID:     p.PersonID,
		Action:       audit.ActionRoleAssigned,
		ResourceType: "role",
		ResourceID:   p.RoleID,
		Success:      true,
		Details: audit.RoleChangeDetails{
			RoleID:       p.RoleID,
			GroupID:      p.GroupID,
			ExpiresAt:    p.ExpiresAt,
			AssignedByID: p.AssignedByID,
		},
	}); err != nil {
		return Assignment{}, err
	}
	return assignment, nil
}

// RevokeRole deactivates an assignment. The row is kept for history.
func (s *Service) RevokeRole(ctx context.Context, personID, roleID string, groupID *string) error {
	personID = strings.TrimSpace(personID)
	roleID = strings.TrimSpace(roleID)
	if personID == "" || roleID == "" {
		return fmt.Errorf("%w: person_id and role_id are required", ErrInvalidInput)
	}
	if err := s.store.DeactivateAssignment(ctx, personID, roleID, groupID); err != nil {
		return err
	}
	return s.log.Append(ctx, audit.Entry{
		PersonID:     personID,
		Action:       audit.ActionRoleRevoked,
		ResourceType: "role",
		ResourceID:   roleID,
		Success:      true,
		Details: audit.RoleChangeDetails{
			RoleID:  roleID,
			GroupID: groupID,
		},
	})
}

// ListEffectivePermissions is the display projection of what a person can
// currently do.
func (s *Service) ListEffectivePermissions(ctx context.Context, personID string) ([]EffectivePermission, error) {
	personID = strings.TrimSpace(personID)
	if personID == "" {
		return nil, fmt.Errorf("%w: person_id is required", ErrInvalidInput)
	}
	return s.store.EffectivePermissions(ctx, personID)
}

// CreateRole registers a custom or built-in role definition.
func (s *Service) CreateRole(ctx context.Context, role Role) (Role, error) {
	role.Name = strings.ToLower(strings.TrimSpace(role.Name))
	role.DisplayName = strings.TrimSpace(role.DisplayName)
	if role.Name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if role.DisplayName == "" {
		role.DisplayName = role.Name
	}
	roleType, err := ParseRoleType(string(role.RoleType))
	if err != nil {
		return Role{}, err
	}
	role.RoleType = roleType
	if role.ID == "" {
		role.ID = ids.New()
	}
	role.Active = true
	return s.store.CreateRole(ctx, role)
}

// ListRoles returns all role definitions.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// DeleteRole removes a custom role. System roles are refused; only their
// permissions may be edited.
func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return ErrSystemRole
	}
	return s.store.DeleteRole(ctx, roleID)
}

// SetPermission upserts a permission row for a role.
func (s *Service) SetPermission(ctx context.Context, p Permission) (Permission, error) {
	p.RoleID = strings.TrimSpace(p.RoleID)
	p.Resource = strings.ToLower(strings.TrimSpace(p.Resource))
	if p.RoleID == "" || p.Resource == "" {
		return Permission{}, fmt.Errorf("%w: role_id and resource are required", ErrInvalidInput)
	}
	if !p.Action.Valid() {
		return Permission{}, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, p.Action)
	}
	if !p.Scope.Valid() {
		return Permission{}, fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, p.Scope)
	}
	if _, err := s.store.GetRole(ctx, p.RoleID); err != nil {
		return Permission{}, err
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	return s.store.SetPermission(ctx, p)
}
