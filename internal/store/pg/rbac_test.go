package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"kitahub.org/internal/rbac"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestAssignmentsForPersonScansRows(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "person_id", "role_id", "group_id", "assigned_by_id", "expires_at", "active", "created_at", "updated_at"}).
		AddRow("as-1", "person-1", "role-teacher", "group-7", "person-director", nil, true, now, now).
		AddRow("as-2", "person-1", "role-parent", nil, "person-director", now.Add(time.Hour), true, now, now)
	mock.ExpectQuery("select id, person_id, role_id, group_id, assigned_by_id, expires_at, active").
		WithArgs("person-1").
		WillReturnRows(rows)

	got, err := store.AssignmentsForPerson(context.Background(), "person-1")
	if err != nil {
		t.Fatalf("AssignmentsForPerson: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(got))
	}
	if got[0].GroupID == nil || *got[0].GroupID != "group-7" {
		t.Fatalf("expected group-7 restriction, got %v", got[0].GroupID)
	}
	if got[1].GroupID != nil {
		t.Fatalf("expected unrestricted assignment, got %v", *got[1].GroupID)
	}
	if got[1].ExpiresAt == nil {
		t.Fatal("expected expiry on second assignment")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertAssignmentReturnsRow(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	group := "group-7"

	mock.ExpectQuery("insert into user_role_assignments").
		WithArgs("as-1", "person-1", "role-teacher", &group, "person-director", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "person_id", "role_id", "group_id", "assigned_by_id", "expires_at", "active", "created_at", "updated_at"}).
			AddRow("as-1", "person-1", "role-teacher", "group-7", "person-director", nil, true, now, now))

	got, err := store.UpsertAssignment(context.Background(), rbac.Assignment{
		ID:           "as-1",
		PersonID:     "person-1",
		RoleID:       "role-teacher",
		GroupID:      &group,
		AssignedByID: "person-director",
	})
	if err != nil {
		t.Fatalf("UpsertAssignment: %v", err)
	}
	if !got.Active {
		t.Fatal("expected returned assignment to be active")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeactivateAssignmentNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update user_role_assignments").
		WithArgs("person-1", "role-teacher", nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeactivateAssignment(context.Background(), "person-1", "role-teacher", nil)
	if !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetRoleNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, name, display_name, role_type").
		WithArgs("role-missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetRole(context.Background(), "role-missing")
	if !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEffectivePermissionsScansProjection(t *testing.T) {
	store, mock := newMockStore(t)
	expires := time.Now().UTC().Add(24 * time.Hour)

	rows := sqlmock.NewRows([]string{"id", "name", "resource", "action", "scope", "group_id", "expires_at"}).
		AddRow("role-teacher", "teacher", "children", "read", "group", "group-7", nil).
		AddRow("role-parent", "parent", "children", "read", "own", nil, expires)
	mock.ExpectQuery("from user_role_assignments a").
		WithArgs("person-1").
		WillReturnRows(rows)

	got, err := store.EffectivePermissions(context.Background(), "person-1")
	if err != nil {
		t.Fatalf("EffectivePermissions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].Scope != rbac.ScopeGroup || got[0].GroupID == nil {
		t.Fatalf("unexpected first row: %+v", got[0])
	}
	if got[1].ExpiresAt == nil || !got[1].ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected expiry on second row: %+v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetPermissionUpserts(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("insert into permissions").
		WithArgs("perm-1", "role-teacher", "children", "read", "group", true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role_id", "resource", "action", "scope", "active", "created_at", "updated_at"}).
			AddRow("perm-1", "role-teacher", "children", "read", "group", true, now, now))

	got, err := store.SetPermission(context.Background(), rbac.Permission{
		ID:       "perm-1",
		RoleID:   "role-teacher",
		Resource: "children",
		Action:   rbac.ActionRead,
		Scope:    rbac.ScopeGroup,
		Active:   true,
	})
	if err != nil {
		t.Fatalf("SetPermission: %v", err)
	}
	if got.Scope != rbac.ScopeGroup {
		t.Fatalf("unexpected scope %q", got.Scope)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteRoleNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("delete from roles").
		WithArgs("role-missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteRole(context.Background(), "role-missing")
	if !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
