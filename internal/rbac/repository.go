package rbac

import "context"

// Repository defines persistence operations for the permission catalog, role
// catalog and grant graph. Mutators on the three junction tables are single
// atomic statements; callers never need read-modify-write cycles.
type Repository interface {
	CreatePermission(ctx context.Context, resource, action, description string) (Permission, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	GetPermissionByKey(ctx context.Context, resource, action string) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	DeletePermission(ctx context.Context, id int64) error

	CreateRole(ctx context.Context, name, description string, isSystem bool) (Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, id int64, name, description *string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	UpsertRoleGrant(ctx context.Context, roleID, permissionID int64, granted bool) error
	DeleteRoleGrant(ctx context.Context, roleID, permissionID int64) error
	ListRoleGrants(ctx context.Context, roleID int64) ([]GrantedPermission, error)

	InsertUserRole(ctx context.Context, userID, roleID int64) error
	DeleteUserRole(ctx context.Context, userID, roleID int64) error
	ListUserRoles(ctx context.Context, userID int64) ([]Role, error)
	ListUsersWithRole(ctx context.Context, roleID int64) ([]int64, error)

	UpsertUserOverride(ctx context.Context, userID, permissionID int64, granted bool) error
	DeleteUserOverride(ctx context.Context, userID, permissionID int64) error
	ListUserOverrides(ctx context.Context, userID int64) ([]GrantedPermission, error)

	// GetOverrideForKey reports the override flag for (user, resource, action)
	// and whether such a row exists at all.
	GetOverrideForKey(ctx context.Context, userID int64, resource, action string) (granted, found bool, err error)
	// HasRoleGrantForKey reports whether any role held by the user carries a
	// granted=true row for (resource, action).
	HasRoleGrantForKey(ctx context.Context, userID int64, resource, action string) (bool, error)
	// RoleDerivedPermissions returns the union of grant rows across every
	// role the user holds, one entry per (role grant) row, deduplicated per
	// permission id preferring granted rows.
	RoleDerivedPermissions(ctx context.Context, userID int64) ([]GrantedPermission, error)

	// CountOrphanedGrants reports grant-graph rows whose catalog side is
	// missing. With cascading foreign keys the expected answer is zero.
	CountOrphanedGrants(ctx context.Context) (int64, error)
}
