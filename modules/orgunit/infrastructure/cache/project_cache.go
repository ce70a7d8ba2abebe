package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blsq/iaso/modules/orgunit/domain/ports"
	"github.com/blsq/iaso/modules/orgunit/domain/types"
)

const keyPrefix = "iaso:"

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// ProjectCache keeps app id lookups in Redis as JSON.
type ProjectCache struct {
	rdb redisClient
}

func NewProjectCache(rdb redisClient) *ProjectCache {
	return &ProjectCache{rdb: rdb}
}

var _ ports.ProjectCache = (*ProjectCache)(nil)

type cachedProject struct {
	ID                  int64   `json:"id"`
	Name                string  `json:"name"`
	AppID               string  `json:"app_id"`
	AccountID           int64   `json:"account_id"`
	NeedsAuthentication bool    `json:"needs_authentication"`
	OrgUnitTypeIDs      []int64 `json:"org_unit_type_ids"`
}

func (c *ProjectCache) GetProject(ctx context.Context, key string) (types.Project, bool, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.Project{}, false, nil
	}
	if err != nil {
		return types.Project{}, false, fmt.Errorf("project cache get %s: %w", key, err)
	}
	var p cachedProject
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.Project{}, false, fmt.Errorf("project cache decode %s: %w", key, err)
	}
	return types.Project{
		ID:                  p.ID,
		Name:                p.Name,
		AppID:               p.AppID,
		AccountID:           p.AccountID,
		NeedsAuthentication: p.NeedsAuthentication,
		OrgUnitTypeIDs:      p.OrgUnitTypeIDs,
	}, true, nil
}

func (c *ProjectCache) SetProject(ctx context.Context, key string, p types.Project, ttl time.Duration) error {
	raw, err := json.Marshal(cachedProject{
		ID:                  p.ID,
		Name:                p.Name,
		AppID:               p.AppID,
		AccountID:           p.AccountID,
		NeedsAuthentication: p.NeedsAuthentication,
		OrgUnitTypeIDs:      p.OrgUnitTypeIDs,
	})
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, keyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("project cache set %s: %w", key, err)
	}
	return nil
}
