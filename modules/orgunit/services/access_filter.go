package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blsq/iaso/modules/orgunit/domain/ports"
	"github.com/blsq/iaso/modules/orgunit/domain/types"
	"github.com/blsq/iaso/pkg/metrics"
)

const defaultProjectCacheTTL = 5 * time.Minute

type AccessFilter struct {
	access   ports.AccessStore
	cache    ports.ProjectCache
	cacheTTL time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

type AccessFilterOption func(*AccessFilter)

func WithProjectCache(cache ports.ProjectCache, ttl time.Duration) AccessFilterOption {
	return func(f *AccessFilter) {
		f.cache = cache
		if ttl > 0 {
			f.cacheTTL = ttl
		}
	}
}

func WithAccessMetrics(m *metrics.Metrics) AccessFilterOption {
	return func(f *AccessFilter) { f.metrics = m }
}

func NewAccessFilter(access ports.AccessStore, logger *zap.Logger, opts ...AccessFilterOption) *AccessFilter {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &AccessFilter{access: access, cacheTTL: defaultProjectCacheTTL, logger: logger}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FilterForUserAndAppID returns the org units user may see, optionally through the mobile
// application identified by appID. An unknown application yields an empty query, not an error.
func (f *AccessFilter) FilterForUserAndAppID(ctx context.Context, user types.User, appID string) (types.OrgUnitQuery, error) {
	appID = strings.TrimSpace(appID)
	q := types.NewOrgUnitQuery()

	if !user.IsAuthenticated() && appID == "" {
		return q.None(), nil
	}

	if user.IsAuthenticated() {
		if user.AccountID == 0 {
			return types.OrgUnitQuery{}, ports.ErrProfileNotFound
		}
		versionIDs, err := f.access.ListAccountVersionIDs(ctx, user.AccountID)
		if err != nil {
			return types.OrgUnitQuery{}, err
		}
		q = q.Where(types.VersionIn{IDs: versionIDs})
		if len(user.OrgUnitIDs) > 0 && !user.IsSuperuser {
			q = HierarchyOfQuery(q, types.NewOrgUnitQuery(types.IDIn{IDs: user.OrgUnitIDs}))
		}
	}

	if appID != "" {
		project, ok, err := f.ProjectForUserAndAppID(ctx, user, appID)
		if err != nil {
			return types.OrgUnitQuery{}, err
		}
		if !ok {
			return q.None(), nil
		}
		account, err := f.access.GetAccount(ctx, project.AccountID)
		if err != nil {
			if errors.Is(err, ports.ErrAccountNotFound) {
				return q.None(), nil
			}
			return types.OrgUnitQuery{}, err
		}
		q = q.Where(types.TypeIn{IDs: project.OrgUnitTypeIDs})
		if account.DefaultVersionID == nil {
			return q.None(), nil
		}
		q = q.Where(types.VersionIn{IDs: []int64{*account.DefaultVersionID}})
	}
	return q, nil
}

// ProjectForUserAndAppID looks the project up by application id, inside the user's account when
// the user is authenticated. Lookups go through the project cache when one is configured; cache
// failures fall back to the store.
func (f *AccessFilter) ProjectForUserAndAppID(ctx context.Context, user types.User, appID string) (types.Project, bool, error) {
	var accountID *int64
	if user.IsAuthenticated() {
		id := user.AccountID
		accountID = &id
	}
	key := projectCacheKey(appID, accountID)

	if f.cache != nil {
		project, hit, err := f.cache.GetProject(ctx, key)
		switch {
		case err != nil:
			f.metrics.ObserveProjectCache("error")
			f.logger.Warn("project cache read failed", zap.String("key", key), zap.Error(err))
		case hit:
			f.metrics.ObserveProjectCache("hit")
			return project, true, nil
		default:
			f.metrics.ObserveProjectCache("miss")
		}
	}

	project, err := f.access.FindProjectByAppID(ctx, appID, accountID)
	if err != nil {
		if errors.Is(err, ports.ErrProjectNotFound) {
			return types.Project{}, false, nil
		}
		return types.Project{}, false, err
	}

	if f.cache != nil {
		if err := f.cache.SetProject(ctx, key, project, f.cacheTTL); err != nil {
			f.logger.Warn("project cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return project, true, nil
}

func projectCacheKey(appID string, accountID *int64) string {
	account := "any"
	if accountID != nil {
		account = strconv.FormatInt(*accountID, 10)
	}
	return "project:app:" + appID + ":account:" + account
}
