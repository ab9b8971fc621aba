package rbac

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/netpanel/netpanel/internal/shared"
)

type grantKey struct {
	left  int64
	right int64
}

// memoryRepo mirrors the storage semantics of the Postgres repository,
// including cascading deletes and upsert behavior on the junction tables.
type memoryRepo struct {
	permissions map[int64]Permission
	roles       map[int64]Role
	roleGrants  map[grantKey]bool // (roleID, permissionID) -> granted
	userRoles   map[grantKey]bool // (userID, roleID) -> present
	overrides   map[grantKey]bool // (userID, permissionID) -> granted

	nextPermissionID int64
	nextRoleID       int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		permissions: make(map[int64]Permission),
		roles:       make(map[int64]Role),
		roleGrants:  make(map[grantKey]bool),
		userRoles:   make(map[grantKey]bool),
		overrides:   make(map[grantKey]bool),
	}
}

func (r *memoryRepo) CreatePermission(ctx context.Context, resource, action, description string) (Permission, error) {
	for _, p := range r.permissions {
		if p.Resource == resource && p.Action == action {
			return Permission{}, fmt.Errorf("%w: permission %s:%s", shared.ErrAlreadyExists, resource, action)
		}
	}
	r.nextPermissionID++
	p := Permission{
		ID:          r.nextPermissionID,
		Resource:    resource,
		Action:      action,
		Description: description,
		CreatedAt:   time.Now(),
	}
	r.permissions[p.ID] = p
	return p, nil
}

func (r *memoryRepo) GetPermission(ctx context.Context, id int64) (Permission, error) {
	p, ok := r.permissions[id]
	if !ok {
		return Permission{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) GetPermissionByKey(ctx context.Context, resource, action string) (Permission, error) {
	for _, p := range r.permissions {
		if p.Resource == resource && p.Action == action {
			return p, nil
		}
	}
	return Permission{}, shared.ErrNotFound
}

func (r *memoryRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	out := make([]Permission, 0, len(r.permissions))
	for _, p := range r.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return out[i].Action < out[j].Action
	})
	return out, nil
}

func (r *memoryRepo) DeletePermission(ctx context.Context, id int64) error {
	if _, ok := r.permissions[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.permissions, id)
	for k := range r.roleGrants {
		if k.right == id {
			delete(r.roleGrants, k)
		}
	}
	for k := range r.overrides {
		if k.right == id {
			delete(r.overrides, k)
		}
	}
	return nil
}

func (r *memoryRepo) CreateRole(ctx context.Context, name, description string, isSystem bool) (Role, error) {
	for _, role := range r.roles {
		if role.Name == name {
			return Role{}, fmt.Errorf("%w: role %s", shared.ErrAlreadyExists, name)
		}
	}
	r.nextRoleID++
	role := Role{
		ID:          r.nextRoleID,
		Name:        name,
		Description: description,
		IsSystem:    isSystem,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (r *memoryRepo) GetRoleByName(ctx context.Context, name string) (Role, error) {
	for _, role := range r.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return Role{}, shared.ErrNotFound
}

func (r *memoryRepo) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) UpdateRole(ctx context.Context, id int64, name, description *string) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	if name != nil {
		role.Name = *name
	}
	if description != nil {
		role.Description = *description
	}
	role.UpdatedAt = time.Now()
	r.roles[id] = role
	return role, nil
}

func (r *memoryRepo) DeleteRole(ctx context.Context, id int64) error {
	role, ok := r.roles[id]
	if !ok {
		return shared.ErrNotFound
	}
	if role.IsSystem {
		return fmt.Errorf("%w: cannot delete system role", shared.ErrForbidden)
	}
	delete(r.roles, id)
	for k := range r.roleGrants {
		if k.left == id {
			delete(r.roleGrants, k)
		}
	}
	for k := range r.userRoles {
		if k.right == id {
			delete(r.userRoles, k)
		}
	}
	return nil
}

func (r *memoryRepo) UpsertRoleGrant(ctx context.Context, roleID, permissionID int64, granted bool) error {
	r.roleGrants[grantKey{roleID, permissionID}] = granted
	return nil
}

func (r *memoryRepo) DeleteRoleGrant(ctx context.Context, roleID, permissionID int64) error {
	delete(r.roleGrants, grantKey{roleID, permissionID})
	return nil
}

func (r *memoryRepo) ListRoleGrants(ctx context.Context, roleID int64) ([]GrantedPermission, error) {
	var out []GrantedPermission
	for k, granted := range r.roleGrants {
		if k.left != roleID {
			continue
		}
		perm, ok := r.permissions[k.right]
		if !ok {
			continue
		}
		out = append(out, GrantedPermission{Permission: perm, Granted: granted})
	}
	sortGranted(out)
	return out, nil
}

func (r *memoryRepo) InsertUserRole(ctx context.Context, userID, roleID int64) error {
	r.userRoles[grantKey{userID, roleID}] = true
	return nil
}

func (r *memoryRepo) DeleteUserRole(ctx context.Context, userID, roleID int64) error {
	delete(r.userRoles, grantKey{userID, roleID})
	return nil
}

func (r *memoryRepo) ListUserRoles(ctx context.Context, userID int64) ([]Role, error) {
	var out []Role
	for k := range r.userRoles {
		if k.left != userID {
			continue
		}
		if role, ok := r.roles[k.right]; ok {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) ListUsersWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	var out []int64
	for k := range r.userRoles {
		if k.right == roleID {
			out = append(out, k.left)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *memoryRepo) UpsertUserOverride(ctx context.Context, userID, permissionID int64, granted bool) error {
	r.overrides[grantKey{userID, permissionID}] = granted
	return nil
}

func (r *memoryRepo) DeleteUserOverride(ctx context.Context, userID, permissionID int64) error {
	delete(r.overrides, grantKey{userID, permissionID})
	return nil
}

func (r *memoryRepo) ListUserOverrides(ctx context.Context, userID int64) ([]GrantedPermission, error) {
	var out []GrantedPermission
	for k, granted := range r.overrides {
		if k.left != userID {
			continue
		}
		perm, ok := r.permissions[k.right]
		if !ok {
			continue
		}
		out = append(out, GrantedPermission{Permission: perm, Granted: granted})
	}
	sortGranted(out)
	return out, nil
}

func (r *memoryRepo) GetOverrideForKey(ctx context.Context, userID int64, resource, action string) (bool, bool, error) {
	for k, granted := range r.overrides {
		if k.left != userID {
			continue
		}
		perm, ok := r.permissions[k.right]
		if ok && perm.Resource == resource && perm.Action == action {
			return granted, true, nil
		}
	}
	return false, false, nil
}

func (r *memoryRepo) HasRoleGrantForKey(ctx context.Context, userID int64, resource, action string) (bool, error) {
	for ur := range r.userRoles {
		if ur.left != userID {
			continue
		}
		for rg, granted := range r.roleGrants {
			if rg.left != ur.right || !granted {
				continue
			}
			perm, ok := r.permissions[rg.right]
			if ok && perm.Resource == resource && perm.Action == action {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *memoryRepo) RoleDerivedPermissions(ctx context.Context, userID int64) ([]GrantedPermission, error) {
	merged := map[int64]GrantedPermission{}
	for ur := range r.userRoles {
		if ur.left != userID {
			continue
		}
		for rg, granted := range r.roleGrants {
			if rg.left != ur.right {
				continue
			}
			perm, ok := r.permissions[rg.right]
			if !ok {
				continue
			}
			if existing, ok := merged[perm.ID]; ok && existing.Granted && !granted {
				continue
			}
			merged[perm.ID] = GrantedPermission{Permission: perm, Granted: granted}
		}
	}
	out := make([]GrantedPermission, 0, len(merged))
	for _, gp := range merged {
		out = append(out, gp)
	}
	sortGranted(out)
	return out, nil
}

func (r *memoryRepo) CountOrphanedGrants(ctx context.Context) (int64, error) {
	var n int64
	for k := range r.roleGrants {
		_, roleOK := r.roles[k.left]
		_, permOK := r.permissions[k.right]
		if !roleOK || !permOK {
			n++
		}
	}
	for k := range r.userRoles {
		if _, ok := r.roles[k.right]; !ok {
			n++
		}
	}
	for k := range r.overrides {
		if _, ok := r.permissions[k.right]; !ok {
			n++
		}
	}
	return n, nil
}

func sortGranted(perms []GrantedPermission) {
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Resource != perms[j].Resource {
			return perms[i].Resource < perms[j].Resource
		}
		return perms[i].Action < perms[j].Action
	})
}
