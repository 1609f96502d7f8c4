package pg

import (
	"context"
	"database/sql"
	"errors"

	"kitahub.org/internal/rbac"
)

var _ rbac.Store = (*Store)(nil)

func (s *Store) AssignmentsForPerson(ctx context.Context, personID string) ([]rbac.Assignment, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, person_id, role_id, group_id, assigned_by_id, expires_at, active, created_at, updated_at
		from user_role_assignments
		where person_id = $1 and active
	`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []rbac.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) RolePermissions(ctx context.Context, roleID, resource string, action rbac.Action) ([]rbac.Permission, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, role_id, resource, action, scope, active, created_at, updated_at
		from permissions
		where role_id = $1 and resource = $2 and action = $3 and active
	`, roleID, resource, string(action))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []rbac.Permission
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.RoleID, &p.Resource, &p.Action, &p.Scope, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// UpsertAssignment relies on the unique expression index over
// (person_id, role_id, coalesce(group_id, '')) for its compare-and-swap;
// a concurrent duplicate grant collapses into an update, never an error.
func (s *Store) UpsertAssignment(ctx context.Context, a rbac.Assignment) (rbac.Assignment, error) {
	if s.db == nil {
		return rbac.Assignment{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		insert into user_role_assignments (id, person_id, role_id, group_id, assigned_by_id, expires_at, active)
		values ($1, $2, $3, $4, $5, $6, true)
		on conflict (person_id, role_id, coalesce(group_id, '')) do update
		set assigned_by_id = excluded.assigned_by_id,
		    expires_at = excluded.expires_at,
		    active = true,
		    updated_at = now()
		returning id, person_id, role_id, group_id, assigned_by_id, expires_at, active, created_at, updated_at
	`, a.ID, a.PersonID, a.RoleID, a.GroupID, a.AssignedByID, a.ExpiresAt)
	return scanAssignment(row)
}

func (s *Store) DeactivateAssignment(ctx context.Context, personID, roleID string, groupID *string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update user_role_assignments
		set active = false, updated_at = now()
		where person_id = $1 and role_id = $2
		  and (($3::text is null and group_id is null) or group_id = $3)
		  and active
	`, personID, roleID, groupID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

func (s *Store) EffectivePermissions(ctx context.Context, personID string) ([]rbac.EffectivePermission, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, p.resource, p.action, p.scope, a.group_id, a.expires_at
		from user_role_assignments a
		join roles r on r.id = a.role_id
		join permissions p on p.role_id = r.id
		where a.person_id = $1
		  and a.active and r.active and p.active
		  and (a.expires_at is null or a.expires_at > now())
		order by r.sort_order, p.resource, p.action
	`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []rbac.EffectivePermission
	for rows.Next() {
		var (
			ep      rbac.EffectivePermission
			groupID sql.NullString
			expires sql.NullTime
		)
		if err := rows.Scan(&ep.RoleID, &ep.RoleName, &ep.Resource, &ep.Action, &ep.Scope, &groupID, &expires); err != nil {
			return nil, err
		}
		if groupID.Valid {
			ep.GroupID = &groupID.String
		}
		if expires.Valid {
			t := expires.Time
			ep.ExpiresAt = &t
		}
		result = append(result, ep)
	}
	return result, rows.Err()
}

func (s *Store) CreateRole(ctx context.Context, role rbac.Role) (rbac.Role, error) {
	if s.db == nil {
		return rbac.Role{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, display_name, role_type, is_system_role, active, sort_order)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id, name, display_name, role_type, is_system_role, active, sort_order, created_at, updated_at
	`, role.ID, role.Name, role.DisplayName, string(role.RoleType), role.IsSystemRole, role.Active, role.SortOrder)
	created, err := scanRole(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.Role{}, rbac.ErrConflict
		}
		return rbac.Role{}, err
	}
	return created, nil
}

func (s *Store) GetRole(ctx context.Context, roleID string) (rbac.Role, error) {
	if s.db == nil {
		return rbac.Role{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select id, name, display_name, role_type, is_system_role, active, sort_order, created_at, updated_at
		from roles
		where id = $1
	`, roleID)
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Role{}, rbac.ErrNotFound
	}
	return role, err
}

func (s *Store) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, display_name, role_type, is_system_role, active, sort_order, created_at, updated_at
		from roles
		order by sort_order, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []rbac.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	return result, rows.Err()
}

func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, roleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return rbac.ErrConflict
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

func (s *Store) SetPermission(ctx context.Context, p rbac.Permission) (rbac.Permission, error) {
	if s.db == nil {
		return rbac.Permission{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		insert into permissions (id, role_id, resource, action, scope, active)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (role_id, resource, action) do update
		set scope = excluded.scope,
		    active = excluded.active,
		    updated_at = now()
		returning id, role_id, resource, action, scope, active, created_at, updated_at
	`, p.ID, p.RoleID, p.Resource, string(p.Action), string(p.Scope), p.Active)
	var out rbac.Permission
	if err := row.Scan(&out.ID, &out.RoleID, &out.Resource, &out.Action, &out.Scope, &out.Active, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return rbac.Permission{}, rbac.ErrNotFound
		}
		return rbac.Permission{}, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (rbac.Assignment, error) {
	var (
		a       rbac.Assignment
		groupID sql.NullString
		expires sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.PersonID, &a.RoleID, &groupID, &a.AssignedByID, &expires, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return rbac.Assignment{}, err
	}
	if groupID.Valid {
		a.GroupID = &groupID.String
	}
	if expires.Valid {
		t := expires.Time
		a.ExpiresAt = &t
	}
	return a, nil
}

func scanRole(row rowScanner) (rbac.Role, error) {
	var role rbac.Role
	err := row.Scan(&role.ID, &role.Name, &role.DisplayName, &role.RoleType, &role.IsSystemRole, &role.Active, &role.SortOrder, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}
