package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/netpanel/netpanel/internal/shared"
)

type seedPermission struct {
	resource    string
	action      string
	description string
}

type seedRole struct {
	name        string
	description string
}

var defaultPermissions = []seedPermission{
	{"users", "read", "View users"},
	{"users", "write", "Create and edit users"},
	{"users", "delete", "Delete users"},
	{"users", "admin", "Full user management"},
	{"settings", "read", "View settings"},
	{"settings", "write", "Modify settings"},
	{"rbac", "read", "View roles and permissions"},
	{"rbac", "write", "Manage roles and permissions"},
}

var systemRoles = []seedRole{
	{"admin", "Administrator with full access"},
	{"operator", "Standard user with read/write access"},
	{"viewer", "Read-only access"},
}

// Non-admin role wiring. The admin role receives every permission present at
// seed time instead of a fixed subset.
var seedRoleGrants = map[string][]seedPermission{
	"operator": {
		{resource: "users", action: "read"},
		{resource: "users", action: "write"},
		{resource: "settings", action: "read"},
		{resource: "settings", action: "write"},
		{resource: "rbac", action: "read"},
	},
	"viewer": {
		{resource: "users", action: "read"},
		{resource: "settings", action: "read"},
		{resource: "rbac", action: "read"},
	},
}

// PrincipalDirectory resolves the bootstrap principal. Implemented by the
// user store collaborator.
type PrincipalDirectory interface {
	LookupID(ctx context.Context, username string) (int64, error)
}

// Bootstrap seeds the default permissions, system roles and initial admin
// assignment. Every step tolerates already-existing rows, so the routine is
// safe to re-run at every process start.
type Bootstrap struct {
	service    *Service
	principals PrincipalDirectory
	logger     *slog.Logger
}

// NewBootstrap constructs a Bootstrap routine.
func NewBootstrap(service *Service, principals PrincipalDirectory, logger *slog.Logger) *Bootstrap {
	return &Bootstrap{service: service, principals: principals, logger: logger}
}

// Run performs the idempotent seed. adminUsername names the principal that
// receives the admin role; an unknown principal is logged and skipped.
func (b *Bootstrap) Run(ctx context.Context, adminUsername string) error {
	for _, sp := range defaultPermissions {
		_, err := b.service.CreatePermission(ctx, sp.resource, sp.action, sp.description)
		if errors.Is(err, shared.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("rbac: seed permission %s:%s: %w", sp.resource, sp.action, err)
		}
	}

	for _, sr := range systemRoles {
		_, err := b.service.CreateRole(ctx, sr.name, sr.description, true)
		if errors.Is(err, shared.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("rbac: seed role %s: %w", sr.name, err)
		}
	}

	adminRole, err := b.service.GetRoleByName(ctx, "admin")
	if err != nil {
		return fmt.Errorf("rbac: resolve admin role: %w", err)
	}
	allPerms, err := b.service.ListPermissions(ctx)
	if err != nil {
		return fmt.Errorf("rbac: list permissions: %w", err)
	}
	for _, perm := range allPerms {
		if err := b.service.AssignPermissionToRole(ctx, adminRole.ID, perm.ID, true); err != nil {
			return fmt.Errorf("rbac: grant %s:%s to admin: %w", perm.Resource, perm.Action, err)
		}
	}

	for roleName, grants := range seedRoleGrants {
		role, err := b.service.GetRoleByName(ctx, roleName)
		if err != nil {
			return fmt.Errorf("rbac: resolve role %s: %w", roleName, err)
		}
		for _, sp := range grants {
			perm, err := b.service.GetPermissionByKey(ctx, sp.resource, sp.action)
			if errors.Is(err, shared.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("rbac: resolve permission %s:%s: %w", sp.resource, sp.action, err)
			}
			if err := b.service.AssignPermissionToRole(ctx, role.ID, perm.ID, true); err != nil {
				return fmt.Errorf("rbac: grant %s:%s to %s: %w", sp.resource, sp.action, roleName, err)
			}
		}
	}

	if adminUsername == "" || b.principals == nil {
		return nil
	}
	adminID, err := b.principals.LookupID(ctx, adminUsername)
	if errors.Is(err, shared.ErrNotFound) {
		if b.logger != nil {
			b.logger.Warn("bootstrap principal not found, skipping admin assignment", slog.String("username", adminUsername))
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("rbac: lookup bootstrap principal: %w", err)
	}
	if err := b.service.AssignRoleToUser(ctx, adminID, adminRole.ID); err != nil {
		return fmt.Errorf("rbac: assign admin role: %w", err)
	}
	if b.logger != nil {
		b.logger.Info("rbac bootstrap complete",
			slog.Int("permissions", len(allPerms)),
			slog.String("admin", adminUsername))
	}
	return nil
}
