package rbac

import "context"

// Store describes the persistence the resolver and admin operations need.
// Implementations must provide their own concurrency guarantees: the unique
// key on (person, role, group) is the compare-and-swap that makes
// UpsertAssignment race-free without an application lock.
type Store interface {
	// AssignmentsForPerson returns the person's active assignments.
	// Expiry is filtered again by the resolver so that lazy invalidation
	// holds regardless of what the backing query does.
	AssignmentsForPerson(ctx context.Context, personID string) ([]Assignment, error)

	// RolePermissions returns the role's active permissions matching
	// resource and action.
	RolePermissions(ctx context.Context, roleID, resource string, action Action) ([]Permission, error)

	// UpsertAssignment inserts, or updates in place when an assignment
	// with the same (person, role, group) key exists. A duplicate grant
	// is never surfaced as a user error.
	UpsertAssignment(ctx context.Context, a Assignment) (Assignment, error)

	// DeactivateAssignment marks the matching assignment inactive.
	DeactivateAssignment(ctx context.Context, personID, roleID string, groupID *string) error

	EffectivePermissions(ctx context.Context, personID string) ([]EffectivePermission, error)

	CreateRole(ctx context.Context, role Role) (Role, error)
	GetRole(ctx context.Context, roleID string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	DeleteRole(ctx context.Context, roleID string) error

	// SetPermission upserts on (role, resource, action).
	SetPermission(ctx context.Context, p Permission) (Permission, error)
}
