package rbac

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/netpanel/netpanel/internal/shared"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, 0)
}

func TestCreatePermissionValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()

	_, err := svc.CreatePermission(ctx, "  ", "read", "")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.CreatePermission(ctx, "users", "", "")
	require.ErrorIs(t, err, shared.ErrValidation)

	perm, err := svc.CreatePermission(ctx, "  users ", " read ", " View users ")
	require.NoError(t, err)
	require.Equal(t, "users", perm.Resource)
	require.Equal(t, "read", perm.Action)
	require.Equal(t, "View users", perm.Description)

	_, err = svc.CreatePermission(ctx, "users", "read", "duplicate")
	require.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestCreateRoleDuplicateName(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, "auditor", "", false)
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, "auditor", "again", false)
	require.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestUpdateRolePartial(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "auditor", "original", false)
	require.NoError(t, err)

	name := "inspector"
	updated, err := svc.UpdateRole(ctx, role.ID, &name, nil)
	require.NoError(t, err)
	require.Equal(t, "inspector", updated.Name)
	require.Equal(t, "original", updated.Description)

	desc := ""
	updated, err = svc.UpdateRole(ctx, role.ID, nil, &desc)
	require.NoError(t, err)
	require.Equal(t, "inspector", updated.Name)
	require.Equal(t, "", updated.Description)

	empty := "   "
	_, err = svc.UpdateRole(ctx, role.ID, &empty, nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.UpdateRole(ctx, 9999, &name, nil)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteSystemRoleForbidden(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	system, err := svc.CreateRole(ctx, "admin", "", true)
	require.NoError(t, err)
	regular, err := svc.CreateRole(ctx, "auditor", "", false)
	require.NoError(t, err)

	require.ErrorIs(t, svc.DeleteRole(ctx, system.ID), shared.ErrForbidden)
	_, err = svc.GetRole(ctx, system.ID)
	require.NoError(t, err, "system role must survive a delete attempt")

	require.NoError(t, svc.DeleteRole(ctx, regular.ID))
	require.ErrorIs(t, svc.DeleteRole(ctx, regular.ID), shared.ErrNotFound)
}

func TestAssignmentsAreIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	perm, err := svc.CreatePermission(ctx, "users", "read", "")
	require.NoError(t, err)
	role, err := svc.CreateRole(ctx, "auditor", "", false)
	require.NoError(t, err)

	require.NoError(t, svc.AssignRoleToUser(ctx, 1, role.ID))
	require.NoError(t, svc.AssignRoleToUser(ctx, 1, role.ID))
	roles, err := svc.ListUserRoles(ctx, 1)
	require.NoError(t, err)
	require.Len(t, roles, 1)

	// Re-assigning a role grant replaces the flag instead of erroring.
	require.NoError(t, svc.AssignPermissionToRole(ctx, role.ID, perm.ID, true))
	require.NoError(t, svc.AssignPermissionToRole(ctx, role.ID, perm.ID, false))
	grants, err := svc.ListRoleGrants(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	require.False(t, grants[0].Granted)

	// Same for overrides.
	require.NoError(t, svc.AssignPermissionToUser(ctx, 1, perm.ID, false))
	require.NoError(t, svc.AssignPermissionToUser(ctx, 1, perm.ID, true))
	overrides, err := svc.ListUserOverrides(ctx, 1)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	require.True(t, overrides[0].Granted)

	// Removing absent rows is a no-op.
	require.NoError(t, svc.RemoveRoleFromUser(ctx, 2, role.ID))
	require.NoError(t, svc.RemovePermissionFromRole(ctx, role.ID, 9999))
	require.NoError(t, svc.RemovePermissionFromUser(ctx, 1, 9999))
}

func TestMutationsBumpCacheVersion(t *testing.T) {
	repo := newMemoryRepo()
	cache := newTestCache(t)
	svc := NewService(repo, cache, nil)
	ctx := context.Background()

	before, err := cache.Version(ctx)
	require.NoError(t, err)

	perm, err := svc.CreatePermission(ctx, "users", "read", "")
	require.NoError(t, err)
	role, err := svc.CreateRole(ctx, "auditor", "", false)
	require.NoError(t, err)
	require.NoError(t, svc.AssignPermissionToRole(ctx, role.ID, perm.ID, true))
	require.NoError(t, svc.AssignRoleToUser(ctx, 1, role.ID))

	after, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, before+4, after)

	// Reads leave the version alone.
	_, err = svc.ListPermissions(ctx)
	require.NoError(t, err)
	_, err = svc.ListUserRoles(ctx, 1)
	require.NoError(t, err)
	unchanged, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, after, unchanged)
}
