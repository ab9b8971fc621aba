package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/netpanel/netpanel/internal/platform/db"
	"github.com/netpanel/netpanel/internal/shared"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// mapError translates storage errors into the shared sentinel kinds.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return shared.ErrAlreadyExists
		case "23503": // foreign_key_violation
			return shared.ErrNotFound
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return fmt.Errorf("%w: %v", shared.ErrStorageUnavailable, err)
}

// ---------------------------------------------------------------------------
// Permission catalog
// ---------------------------------------------------------------------------

const permissionColumns = `id, resource, action, description, created_at`

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Resource, &p.Action, &p.Description, &p.CreatedAt)
	return p, err
}

// CreatePermission inserts a new permission definition.
func (r *PGRepository) CreatePermission(ctx context.Context, resource, action, description string) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (resource, action, description, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING `+permissionColumns,
		resource, action, description)
	p, err := scanPermission(row)
	if err != nil {
		return Permission{}, mapError(err)
	}
	return p, nil
}

// GetPermission fetches a permission by ID.
func (r *PGRepository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id)
	p, err := scanPermission(row)
	if err != nil {
		return Permission{}, mapError(err)
	}
	return p, nil
}

// GetPermissionByKey fetches a permission by its (resource, action) identity.
func (r *PGRepository) GetPermissionByKey(ctx context.Context, resource, action string) (Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE resource = $1 AND action = $2`, resource, action)
	p, err := scanPermission(row)
	if err != nil {
		return Permission{}, mapError(err)
	}
	return p, nil
}

// ListPermissions returns all permissions ordered by resource then action.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY resource, action`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	perms := []Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, mapError(err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return perms, nil
}

// DeletePermission removes a permission; grant and override rows referencing
// it go with it via cascading foreign keys.
func (r *PGRepository) DeletePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Role catalog
// ---------------------------------------------------------------------------

const roleColumns = `id, name, description, is_system, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// CreateRole inserts a new role.
func (r *PGRepository) CreateRole(ctx context.Context, name, description string, isSystem bool) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, is_system, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING `+roleColumns,
		name, description, isSystem)
	role, err := scanRole(row)
	if err != nil {
		return Role{}, mapError(err)
	}
	return role, nil
}

// GetRole fetches a role by ID.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		return Role{}, mapError(err)
	}
	return role, nil
}

// GetRoleByName fetches a role by its unique name.
func (r *PGRepository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name)
	role, err := scanRole(row)
	if err != nil {
		return Role{}, mapError(err)
	}
	return role, nil
}

// ListRoles returns all roles ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	roles := []Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, mapError(err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return roles, nil
}

// UpdateRole applies a partial update; nil fields retain their stored value.
func (r *PGRepository) UpdateRole(ctx context.Context, id int64, name, description *string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+roleColumns,
		id, name, description)
	role, err := scanRole(row)
	if err != nil {
		return Role{}, mapError(err)
	}
	return role, nil
}

// DeleteRole removes a non-system role and, via cascading foreign keys, its
// grant and assignment rows. System roles are never deleted.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var isSystem bool
		if err := tx.QueryRow(ctx, `SELECT is_system FROM roles WHERE id = $1`, id).Scan(&isSystem); err != nil {
			return err
		}
		if isSystem {
			return fmt.Errorf("%w: cannot delete system role", shared.ErrForbidden)
		}
		_, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		return err
	})
	if err == nil || errors.Is(err, shared.ErrForbidden) {
		return err
	}
	return mapError(err)
}

// ---------------------------------------------------------------------------
// Grant graph
// ---------------------------------------------------------------------------

// UpsertRoleGrant inserts or replaces the grant row for (role, permission).
func (r *PGRepository) UpsertRoleGrant(ctx context.Context, roleID, permissionID int64, granted bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, granted, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (role_id, permission_id) DO UPDATE SET granted = EXCLUDED.granted`,
		roleID, permissionID, granted)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// DeleteRoleGrant removes the grant row if present; absent rows are a no-op.
func (r *PGRepository) DeleteRoleGrant(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// ListRoleGrants returns the role's permissions joined with their grant flag,
// ordered by resource then action.
func (r *PGRepository) ListRoleGrants(ctx context.Context, roleID int64) ([]GrantedPermission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.resource, p.action, p.description, p.created_at, rp.granted
		FROM permissions p
		JOIN role_permissions rp ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.resource, p.action`,
		roleID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return collectGranted(rows)
}

// InsertUserRole assigns a role to a user; a duplicate assignment is a no-op.
func (r *PGRepository) InsertUserRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, role_id) DO NOTHING`,
		userID, roleID)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// DeleteUserRole removes a role assignment if present.
func (r *PGRepository) DeleteUserRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// ListUserRoles returns the user's roles ordered by name.
func (r *PGRepository) ListUserRoles(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.name, r.description, r.is_system, r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name`,
		userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	roles := []Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, mapError(err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return roles, nil
}

// ListUsersWithRole returns the IDs of all users holding the role.
func (r *PGRepository) ListUsersWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1 ORDER BY user_id`, roleID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return ids, nil
}

// UpsertUserOverride inserts or replaces the override row for (user, permission).
func (r *PGRepository) UpsertUserOverride(ctx context.Context, userID, permissionID int64, granted bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_permissions (user_id, permission_id, granted, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, permission_id) DO UPDATE SET granted = EXCLUDED.granted`,
		userID, permissionID, granted)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// DeleteUserOverride removes an override row if present.
func (r *PGRepository) DeleteUserOverride(ctx context.Context, userID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1 AND permission_id = $2`, userID, permissionID)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// ListUserOverrides returns the user's override rows joined with their
// permissions, ordered by resource then action.
func (r *PGRepository) ListUserOverrides(ctx context.Context, userID int64) ([]GrantedPermission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.resource, p.action, p.description, p.created_at, up.granted
		FROM permissions p
		JOIN user_permissions up ON p.id = up.permission_id
		WHERE up.user_id = $1
		ORDER BY p.resource, p.action`,
		userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return collectGranted(rows)
}

// ---------------------------------------------------------------------------
// Resolver queries
// ---------------------------------------------------------------------------

// GetOverrideForKey looks up the override flag for (user, resource, action).
func (r *PGRepository) GetOverrideForKey(ctx context.Context, userID int64, resource, action string) (bool, bool, error) {
	var granted bool
	err := r.pool.QueryRow(ctx, `
		SELECT up.granted
		FROM user_permissions up
		JOIN permissions p ON up.permission_id = p.id
		WHERE up.user_id = $1 AND p.resource = $2 AND p.action = $3`,
		userID, resource, action).Scan(&granted)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, mapError(err)
	}
	return granted, true, nil
}

// HasRoleGrantForKey reports whether any of the user's roles carries a
// granted=true row for (resource, action). Deny rows are never consulted on
// this path.
func (r *PGRepository) HasRoleGrantForKey(ctx context.Context, userID int64, resource, action string) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx, `
		SELECT 1
		FROM role_permissions rp
		JOIN permissions p ON rp.permission_id = p.id
		JOIN user_roles ur ON rp.role_id = ur.role_id
		WHERE ur.user_id = $1 AND p.resource = $2 AND p.action = $3 AND rp.granted
		LIMIT 1`,
		userID, resource, action).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err)
	}
	return true, nil
}

// RoleDerivedPermissions returns the distinct grant rows across every role
// held by the user. A permission can appear twice when different roles
// disagree on the flag; the resolver merges preferring granted rows.
func (r *PGRepository) RoleDerivedPermissions(ctx context.Context, userID int64) ([]GrantedPermission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT p.id, p.resource, p.action, p.description, p.created_at, rp.granted
		FROM permissions p
		JOIN role_permissions rp ON p.id = rp.permission_id
		JOIN user_roles ur ON rp.role_id = ur.role_id
		WHERE ur.user_id = $1`,
		userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return collectGranted(rows)
}

// CountOrphanedGrants counts junction rows whose catalog side is gone.
func (r *PGRepository) CountOrphanedGrants(ctx context.Context) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM role_permissions rp LEFT JOIN permissions p ON rp.permission_id = p.id LEFT JOIN roles r ON rp.role_id = r.id WHERE p.id IS NULL OR r.id IS NULL) +
			(SELECT COUNT(*) FROM user_roles ur LEFT JOIN roles r ON ur.role_id = r.id WHERE r.id IS NULL) +
			(SELECT COUNT(*) FROM user_permissions up LEFT JOIN permissions p ON up.permission_id = p.id WHERE p.id IS NULL)`).Scan(&total)
	if err != nil {
		return 0, mapError(err)
	}
	return total, nil
}

func collectGranted(rows pgx.Rows) ([]GrantedPermission, error) {
	perms := []GrantedPermission{}
	for rows.Next() {
		var gp GrantedPermission
		if err := rows.Scan(&gp.ID, &gp.Resource, &gp.Action, &gp.Description, &gp.CreatedAt, &gp.Granted); err != nil {
			return nil, mapError(err)
		}
		perms = append(perms, gp)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return perms, nil
}
