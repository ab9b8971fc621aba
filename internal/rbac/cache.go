package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheVersionKey = "rbac:version"

// Cache wraps Redis based caching of effective permission sets with
// versioning controls. Every mutation of the catalogs or the grant graph
// bumps the version, which retires every cached set at once.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Bump invalidates every cached effective permission set by incrementing the
// global version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

// FetchEffective loads the cached effective permission set for a user, or
// populates it using the loader. Concurrent fills for the same user collapse
// into one loader call.
func (c *Cache) FetchEffective(ctx context.Context, userID int64, loader func(context.Context) ([]EffectivePermission, error)) ([]EffectivePermission, error) {
	if loader == nil {
		return nil, errors.New("rbac: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.Version(ctx)
	if err != nil {
		// Cache trouble never fails an authorization decision.
		return loader(ctx)
	}
	key := fmt.Sprintf("rbac:effective:%d:%d", userID, ver)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var perms []EffectivePermission
		if err := json.Unmarshal(payload, &perms); err == nil {
			return perms, nil
		}
	} else if err != redis.Nil {
		return loader(ctx)
	}

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		perms, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(perms); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]EffectivePermission), nil
}
