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

const cacheVersionKey = "rbac:perms:version"

// PermissionsCache stores per-user permission snapshots in Redis with
// versioning controls. A nil cache or client degrades to pass-through.
type PermissionsCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewPermissionsCache instantiates the cache helper.
func NewPermissionsCache(client *redis.Client, ttl time.Duration) *PermissionsCache {
	return &PermissionsCache{client: client, ttl: ttl}
}

// Fetch loads the cached matrix for a user or populates it via the loader.
func (c *PermissionsCache) Fetch(ctx context.Context, userID string, loader func(context.Context) (Matrix, error)) (Matrix, error) {
	if loader == nil {
		return nil, errors.New("rbac cache: loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.key(ctx, userID)
	if err != nil {
		return nil, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var matrix Matrix
		if err := json.Unmarshal(payload, &matrix); err == nil {
			return matrix, nil
		}
		// Fall through on a corrupt entry and rebuild it.
	} else if err != redis.Nil {
		return nil, err
	}
	// Collapse concurrent misses for the same key into one rebuild.
	value, err, _ := c.group.Do(key, func() (any, error) {
		matrix, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(matrix)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, err
		}
		return matrix, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(Matrix), nil
}

// InvalidateUser drops one user's snapshot. Used on assignment changes.
func (c *PermissionsCache) InvalidateUser(ctx context.Context, userID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	key, err := c.key(ctx, userID)
	if err != nil {
		return err
	}
	if err := c.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// InvalidateAll bumps the version, orphaning every cached snapshot. Used on
// rule, role and element mutations that affect many users at once.
func (c *PermissionsCache) InvalidateAll(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

func (c *PermissionsCache) key(ctx context.Context, userID string) (string, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("rbac:perms:%d:%s", ver, userID), nil
}

func (c *PermissionsCache) version(ctx context.Context) (int64, error) {
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
