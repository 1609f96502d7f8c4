package rbac

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubStore struct {
	assignments    []Assignment
	assignmentsErr error
	perms          map[string][]Permission
	permsErr       error

	roles       map[string]Role
	upserted    []Assignment
	upsertErr   error
	deactivated []string
	deactErr    error
	effective   []EffectivePermission
	deleted     []string
}

func (s *stubStore) AssignmentsForPerson(context.Context, string) ([]Assignment, error) {
	return s.assignments, s.assignmentsErr
}

func (s *stubStore) RolePermissions(_ context.Context, roleID, resource string, action Action) ([]Permission, error) {
	if s.permsErr != nil {
		return nil, s.permsErr
	}
	var out []Permission
	for _, p := range s.perms[roleID] {
		if p.Resource == resource && p.Action == action {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubStore) UpsertAssignment(_ context.Context, a Assignment) (Assignment, error) {
	if s.upsertErr != nil {
		return Assignment{}, s.upsertErr
	}
	s.upserted = append(s.upserted, a)
	return a, nil
}

func (s *stubStore) DeactivateAssignment(_ context.Context, personID, roleID string, _ *string) error {
	if s.deactErr != nil {
		return s.deactErr
	}
	s.deactivated = append(s.deactivated, personID+"/"+roleID)
	return nil
}

func (s *stubStore) EffectivePermissions(context.Context, string) ([]EffectivePermission, error) {
	return s.effective, nil
}

func (s *stubStore) CreateRole(_ context.Context, role Role) (Role, error) { return role, nil }

func (s *stubStore) GetRole(_ context.Context, roleID string) (Role, error) {
	role, ok := s.roles[roleID]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (s *stubStore) ListRoles(context.Context) ([]Role, error) { return nil, nil }

func (s *stubStore) DeleteRole(_ context.Context, roleID string) error {
	s.deleted = append(s.deleted, roleID)
	return nil
}

func (s *stubStore) SetPermission(_ context.Context, p Permission) (Permission, error) {
	return p, nil
}

func strptr(s string) *string { return &s }

func mustResolver(t *testing.T, store Store, now time.Time) *Resolver {
	t.Helper()
	r, err := NewResolver(store, func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func TestResolveGroupScopeMatchesAssignedGroup(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := &stubStore{
		assignments: []Assignment{
			{PersonID: "42", RoleID: "teacher", GroupID: strptr("7"), Active: true},
		},
		perms: map[string][]Permission{
			"teacher": {{RoleID: "teacher", Resource: "children", Action: ActionRead, Scope: ScopeGroup, Active: true}},
		},
	}
	r := mustResolver(t, store, now)

	d, err := r.Resolve(context.Background(), "42", "children", ActionRead, Context{TargetGroupID: strptr("7")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !d.Allowed || d.MatchedScope != ScopeGroup {
		t.Fatalf("expected group allow, got %+v", d)
	}

	d, err = r.Resolve(context.Background(), "42", "children", ActionRead, Context{TargetGroupID: strptr("9")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected deny for foreign group, got %+v", d)
	}
}

func TestResolveAllScopeIgnoresGroupContext(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := &stubStore{
		assignments: []Assignment{
			{PersonID: "1", RoleID: "director", Active: true},
		},
		perms: map[string][]Permission{
			"director": {{RoleID: "director", Resource: "children", Action: ActionRead, Scope: ScopeAll, Active: true}},
		},
	}
	r := mustResolver(t, store, now)

	for _, rc := range []Context{{}, {TargetGroupID: strptr("7")}, {TargetGroupID: strptr("anything")}} {
		d, err := r.Resolve(context.Background(), "1", "children", ActionRead, rc)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if !d.Allowed || d.MatchedScope != ScopeAll {
			t.Fatalf("expected all allow, got %+v", d)
		}
	}
}

func TestResolveExcludesExpiredAssignments(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	store := &stubStore{
		// The stale row is still returned by storage; the resolver must
		// skip it.
		assignments: []Assignment{
			{PersonID: "42", RoleID: "teacher", Active: true, ExpiresAt: &past},
		},
		perms: map[string][]Permission{
			"teacher": {{RoleID: "teacher", Resource: "children", Action: ActionRead, Scope: ScopeAll, Active: true}},
		},
	}
	r := mustResolver(t, store, now)

	d, err := r.Resolve(context.Background(), "42", "children", ActionRead, Context{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expired assignment must not grant, got %+v", d)
	}
}

func TestResolvePrecedenceScansFullCandidateSet(t *testing.T) {
	// The narrow "own" assignment is listed first; a broad grant elsewhere
	// in the set must still win with its own scope.
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := &stubStore{
		assignments: []Assignment{
			{PersonID: "5", RoleID: "parent", Active: true},
			{PersonID: "5", RoleID: "director", Active: true},
		},
		perms: map[string][]Permission{
			"parent":   {{RoleID: "parent", Resource: "children", Action: ActionRead, Scope: ScopeOwn, Active: true}},
			"director": {{RoleID: "director", Resource: "children", Action: ActionRead, Scope: ScopeAll, Active: true}},
		},
	}
	r := mustResolver(t, store, now)

	d, err := r.Resolve(context.Background(), "5", "children", ActionRead, Context{IsOwner: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !d.Allowed || d.MatchedScope != ScopeAll {
		t.Fatalf("expected all to take precedence, got %+v", d)
	}
}

func TestResolveGroupBeatsOwn(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := &stubStore{
		assignments: []Assignment{
			{PersonID: "5", RoleID: "parent", Active: true},
			{PersonID: "5", RoleID: "assistant", GroupID: strptr("7"), Active: true},
		},
		perms: map[string][]Permission{
			"parent":    {{RoleID: "parent", Resource: "children", Action: ActionRead, Scope: ScopeOwn, Active: true}},
			"assistant": {{RoleID: "assistant", Resource: "children", Action: ActionRead, Scope: ScopeGroup, Active: true}},
		},
	}
	r := mustResolver(t, store, now)

	d, err := r.Resolve(context.Background(), "5", "children", ActionRead, Context{TargetGroupID: strptr("7"), IsOwner: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !d.Allowed || d.MatchedScope != ScopeGroup {
		t.Fatalf("expected group to beat own, got %+v", d)
	}
}

func TestResolveUnrestrictedGroupAssignmentMatchesAnyGroup(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := &stubStore{
		assignments: []Assignment{
			{PersonID: "8", RoleID: "staff", GroupID: nil, Active: true},
		},
		perms: map[string][]Permission{
			"staff": {{RoleID: "staff", Resource: "attendance", Action: ActionUpdate, Scope: ScopeGroup, Active: true}},
		},
	}
	r := mustResolver(t, store, now)

	d, err := r.Resolve(context.Background(), "8", "attendance", ActionUpdate, Context{TargetGroupID: strptr("any-group")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !d.Allowed || d.MatchedScope != ScopeGroup {
		t.Fatalf("nil group assignment should match any target, got %+v", d)
	}
}

func TestResolveOwnRequiresOwnershipFlag(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := &stubStore{
		assignments: []Assignment{
			{PersonID: "9", RoleID: "parent", Active: true},
		},
		perms: map[string][]Permission{
			"parent": {{RoleID: "parent", Resource: "children", Action: ActionRead, Scope: ScopeOwn, Active: true}},
		},
	}
	r := mustResolver(t, store, now)

	d, _ := r.Resolve(context.Background(), "9", "children", ActionRead, Context{IsOwner: true})
	if !d.Allowed || d.MatchedScope != ScopeOwn {
		t.Fatalf("expected own allow, got %+v", d)
	}

	d, _ = r.Resolve(context.Background(), "9", "children", ActionRead, Context{IsOwner: false})
	if d.Allowed {
		t.Fatalf("expected deny without ownership, got %+v", d)
	}
}

func TestResolveDeniesOnStoreFailure(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := &stubStore{assignmentsErr: errors.New("timeout")}
	r := mustResolver(t, store, now)

	d, err := r.Resolve(context.Background(), "42", "children", ActionRead, Context{})
	if err == nil {
		t.Fatal("expected error from failing store")
	}
	if d.Allowed {
		t.Fatal("store failure must never default to permissive")
	}
}

func TestResolveSkipsInactiveRows(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := &stubStore{
		assignments: []Assignment{
			{PersonID: "3", RoleID: "teacher", Active: false},
			{PersonID: "3", RoleID: "staff", Active: true},
		},
		perms: map[string][]Permission{
			"teacher": {{RoleID: "teacher", Resource: "children", Action: ActionRead, Scope: ScopeAll, Active: true}},
			"staff":   {{RoleID: "staff", Resource: "children", Action: ActionRead, Scope: ScopeAll, Active: false}},
		},
	}
	r := mustResolver(t, store, now)

	d, err := r.Resolve(context.Background(), "3", "children", ActionRead, Context{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Allowed {
		t.Fatalf("inactive rows must not grant, got %+v", d)
	}
}
