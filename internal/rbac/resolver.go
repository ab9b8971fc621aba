package rbac

import (
	"context"
	"sort"
)

// Resolver answers authorization questions from the grant graph. It is
// stateless apart from the read-through cache and never mutates storage.
//
// Resolution order for a single check:
//  1. a user override, when present, is authoritative in both directions
//  2. otherwise any granted=true role grant across the user's roles allows
//  3. otherwise default deny
type Resolver struct {
	repo  Repository
	cache *Cache
}

// NewResolver constructs a Resolver. The cache may be nil.
func NewResolver(repo Repository, cache *Cache) *Resolver {
	return &Resolver{repo: repo, cache: cache}
}

// HasPermission reports whether the user holds (resource, action). A missing
// permission, role or override is valid input producing false, not an error.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, resource, action string) (bool, error) {
	granted, found, err := r.repo.GetOverrideForKey(ctx, userID, resource, action)
	if err != nil {
		return false, err
	}
	if found {
		return granted, nil
	}

	allowed, err := r.repo.HasRoleGrantForKey(ctx, userID, resource, action)
	if err != nil {
		return false, err
	}
	return allowed, nil
}

// EffectivePermissions resolves the user's full permission set: the union of
// role-derived grants with overrides applied on top, filtered to granted
// entries and sorted by (resource, action).
func (r *Resolver) EffectivePermissions(ctx context.Context, userID int64) ([]EffectivePermission, error) {
	return r.cache.FetchEffective(ctx, userID, func(ctx context.Context) ([]EffectivePermission, error) {
		return r.resolveEffective(ctx, userID)
	})
}

func (r *Resolver) resolveEffective(ctx context.Context, userID int64) ([]EffectivePermission, error) {
	type permKey struct {
		resource string
		action   string
	}

	merged := map[permKey]EffectivePermission{}

	rolePerms, err := r.repo.RoleDerivedPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, gp := range rolePerms {
		key := permKey{gp.Resource, gp.Action}
		// Keep the most permissive row when roles disagree on a permission.
		if existing, ok := merged[key]; ok && existing.Granted && !gp.Granted {
			continue
		}
		merged[key] = EffectivePermission{Permission: gp.Permission, Granted: gp.Granted, Source: SourceRole}
	}

	overrides, err := r.repo.ListUserOverrides(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, gp := range overrides {
		key := permKey{gp.Resource, gp.Action}
		merged[key] = EffectivePermission{Permission: gp.Permission, Granted: gp.Granted, Source: SourceOverride}
	}

	perms := make([]EffectivePermission, 0, len(merged))
	for _, ep := range merged {
		if ep.Granted {
			perms = append(perms, ep)
		}
	}
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Resource != perms[j].Resource {
			return perms[i].Resource < perms[j].Resource
		}
		return perms[i].Action < perms[j].Action
	})
	return perms, nil
}

// CheckAny reports whether the user holds at least one of the actions on the
// resource.
func (r *Resolver) CheckAny(ctx context.Context, userID int64, resource string, actions []string) (bool, error) {
	for _, action := range actions {
		ok, err := r.HasPermission(ctx, userID, resource, action)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// CheckAll reports whether the user holds every listed action on the
// resource.
func (r *Resolver) CheckAll(ctx context.Context, userID int64, resource string, actions []string) (bool, error) {
	for _, action := range actions {
		ok, err := r.HasPermission(ctx, userID, resource, action)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
