package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/netpanel/netpanel/internal/shared"
)

// Service orchestrates catalog and grant graph operations. Mutations
// invalidate the effective-permission cache before returning, so an
// administrator never reads a set staler than their own change.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("bump rbac cache version", slog.Any("error", err))
	}
}

// ---------------------------------------------------------------------------
// Permission catalog
// ---------------------------------------------------------------------------

// CreatePermission registers a new (resource, action) permission.
func (s *Service) CreatePermission(ctx context.Context, resource, action, description string) (Permission, error) {
	resource = strings.TrimSpace(resource)
	action = strings.TrimSpace(action)
	if resource == "" || action == "" {
		return Permission{}, fmt.Errorf("%w: resource and action required", shared.ErrValidation)
	}
	perm, err := s.repo.CreatePermission(ctx, resource, action, strings.TrimSpace(description))
	if err != nil {
		return Permission{}, err
	}
	s.invalidate(ctx)
	return perm, nil
}

// GetPermission fetches a permission by ID.
func (s *Service) GetPermission(ctx context.Context, id int64) (Permission, error) {
	return s.repo.GetPermission(ctx, id)
}

// GetPermissionByKey fetches a permission by its (resource, action) identity.
func (s *Service) GetPermissionByKey(ctx context.Context, resource, action string) (Permission, error) {
	return s.repo.GetPermissionByKey(ctx, resource, action)
}

// ListPermissions returns all permissions ordered by resource then action.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// DeletePermission removes a permission along with every grant and override
// referencing it. There is no in-use guard.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	if err := s.repo.DeletePermission(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ---------------------------------------------------------------------------
// Role catalog
// ---------------------------------------------------------------------------

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string, isSystem bool) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description), isSystem)
	if err != nil {
		return Role{}, err
	}
	s.invalidate(ctx)
	return role, nil
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// GetRoleByName fetches a role by name.
func (s *Service) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return s.repo.GetRoleByName(ctx, name)
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// UpdateRole applies a partial update; nil fields keep their current value.
// System roles can be renamed and re-described, just not deleted.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description *string) (Role, error) {
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
		}
		name = &trimmed
	}
	role, err := s.repo.UpdateRole(ctx, id, name, description)
	if err != nil {
		return Role{}, err
	}
	s.invalidate(ctx)
	return role, nil
}

// DeleteRole removes a non-system role and cascades to its grant and
// assignment rows.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ---------------------------------------------------------------------------
// Grant graph
// ---------------------------------------------------------------------------

// AssignPermissionToRole upserts the grant row for (role, permission).
// Re-assigning replaces the prior flag; it is never an error.
func (s *Service) AssignPermissionToRole(ctx context.Context, roleID, permissionID int64, granted bool) error {
	if err := s.repo.UpsertRoleGrant(ctx, roleID, permissionID, granted); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// RemovePermissionFromRole deletes the grant row; absent rows are a no-op.
func (s *Service) RemovePermissionFromRole(ctx context.Context, roleID, permissionID int64) error {
	if err := s.repo.DeleteRoleGrant(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ListRoleGrants returns the role's permissions with their grant flag.
func (s *Service) ListRoleGrants(ctx context.Context, roleID int64) ([]GrantedPermission, error) {
	return s.repo.ListRoleGrants(ctx, roleID)
}

// AssignRoleToUser assigns a role; duplicate assignments are silent no-ops.
func (s *Service) AssignRoleToUser(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.InsertUserRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// RemoveRoleFromUser removes a role assignment if present.
func (s *Service) RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.DeleteUserRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ListUserRoles returns the user's roles ordered by name.
func (s *Service) ListUserRoles(ctx context.Context, userID int64) ([]Role, error) {
	return s.repo.ListUserRoles(ctx, userID)
}

// ListUsersWithRole returns the IDs of all users holding the role.
func (s *Service) ListUsersWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	return s.repo.ListUsersWithRole(ctx, roleID)
}

// AssignPermissionToUser upserts an override for (user, permission). The
// override supersedes every role grant for that permission.
func (s *Service) AssignPermissionToUser(ctx context.Context, userID, permissionID int64, granted bool) error {
	if err := s.repo.UpsertUserOverride(ctx, userID, permissionID, granted); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// RemovePermissionFromUser removes an override if present.
func (s *Service) RemovePermissionFromUser(ctx context.Context, userID, permissionID int64) error {
	if err := s.repo.DeleteUserOverride(ctx, userID, permissionID); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ListUserOverrides returns the user's override rows with their permissions.
func (s *Service) ListUserOverrides(ctx context.Context, userID int64) ([]GrantedPermission, error) {
	return s.repo.ListUserOverrides(ctx, userID)
}
