package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blsq/iaso/modules/orgunit/domain/ports"
	"github.com/blsq/iaso/modules/orgunit/domain/types"
	"github.com/blsq/iaso/modules/orgunit/infrastructure/persistence"
	orgunitpkg "github.com/blsq/iaso/pkg/orgunit"
)

// accessFixture: account 1 owns project 10 (app "org.demo", types 100) whose data source 1000 has
// versions 11 and 12, default 11. Account 2 owns project 20 (app "org.other") with no default
// version.
//
//	11: country(1) > region(2) > district(3, type 100), region(4)
//	12: country(5)
func accessFixture(t *testing.T) *persistence.MemoryStore {
	t.Helper()
	s := persistence.NewMemoryStore()
	s.PutAccount(types.Account{ID: 1, Name: "demo", DefaultVersionID: ptr(int64(11))})
	s.PutAccount(types.Account{ID: 2, Name: "other"})
	s.PutProject(types.Project{ID: 10, AppID: "org.demo", AccountID: 1, OrgUnitTypeIDs: []int64{100}})
	s.PutProject(types.Project{ID: 20, AppID: "org.other", AccountID: 2, OrgUnitTypeIDs: []int64{100}})
	s.PutDataSource(types.DataSource{ID: 1000, ProjectIDs: []int64{10}})
	s.PutVersion(types.SourceVersion{ID: 11, DataSourceID: 1000, Number: 1})
	s.PutVersion(types.SourceVersion{ID: 12, DataSourceID: 1000, Number: 2})

	v11, v12 := ptr(int64(11)), ptr(int64(12))
	s.PutOrgUnit(types.OrgUnit{ID: 1, Name: "country", Path: orgunitpkg.Path{1}, VersionID: v11})
	s.PutOrgUnit(types.OrgUnit{ID: 2, Name: "region", ParentID: ptr(int64(1)), Path: orgunitpkg.Path{1, 2}, VersionID: v11})
	s.PutOrgUnit(types.OrgUnit{ID: 3, Name: "district", ParentID: ptr(int64(2)), Path: orgunitpkg.Path{1, 2, 3}, VersionID: v11, OrgUnitTypeID: ptr(int64(100))})
	s.PutOrgUnit(types.OrgUnit{ID: 4, Name: "region2", ParentID: ptr(int64(1)), Path: orgunitpkg.Path{1, 4}, VersionID: v11})
	s.PutOrgUnit(types.OrgUnit{ID: 5, Name: "country2", Path: orgunitpkg.Path{5}, VersionID: v12})
	return s
}

func listIDs(t *testing.T, store *persistence.MemoryStore, q types.OrgUnitQuery) []int64 {
	t.Helper()
	units, err := store.ListOrgUnits(context.Background(), q)
	require.NoError(t, err)
	return changedIDs(units)
}

func TestFilterForUserAndAppID(t *testing.T) {
	ctx := context.Background()
	store := accessFixture(t)
	f := NewAccessFilter(store, zap.NewNop())

	superuser := types.User{ID: 1, AccountID: 1, IsSuperuser: true, OrgUnitIDs: []int64{2}}
	scoped := types.User{ID: 2, AccountID: 1, OrgUnitIDs: []int64{2}}
	unscoped := types.User{ID: 3, AccountID: 1}
	foreign := types.User{ID: 4, AccountID: 2}

	cases := []struct {
		name  string
		user  types.User
		appID string
		want  []int64
		none  bool
	}{
		{name: "anonymous without app", user: types.AnonymousUser(), none: true},
		{name: "superuser ignores scope", user: superuser, want: []int64{1, 2, 3, 4, 5}},
		{name: "unscoped user sees account versions", user: unscoped, want: []int64{1, 2, 3, 4, 5}},
		{name: "scoped user sees assigned hierarchy", user: scoped, want: []int64{2, 3}},
		{name: "user without linked versions sees nothing", user: foreign, want: []int64{}},
		{name: "anonymous with app", user: types.AnonymousUser(), appID: "org.demo", want: []int64{3}},
		{name: "unknown app", user: types.AnonymousUser(), appID: "org.nope", none: true},
		{name: "app of another account", user: unscoped, appID: "org.other", none: true},
		{name: "app without default version", user: types.AnonymousUser(), appID: "org.other", none: true},
		{name: "scoped user with app", user: scoped, appID: "org.demo", want: []int64{3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := f.FilterForUserAndAppID(ctx, tc.user, tc.appID)
			require.NoError(t, err)
			if tc.none {
				assert.True(t, q.IsNone())
				return
			}
			assert.False(t, q.IsNone())
			assert.Equal(t, tc.want, listIDs(t, store, q))
		})
	}
}

func TestFilterForUserAndAppID_MissingProfile(t *testing.T) {
	store := accessFixture(t)
	f := NewAccessFilter(store, zap.NewNop())

	_, err := f.FilterForUserAndAppID(context.Background(), types.User{ID: 9}, "")
	assert.ErrorIs(t, err, ports.ErrProfileNotFound)
}

type countingAccessStore struct {
	ports.AccessStore
	projectLookups int
}

func (s *countingAccessStore) FindProjectByAppID(ctx context.Context, appID string, accountID *int64) (types.Project, error) {
	s.projectLookups++
	return s.AccessStore.FindProjectByAppID(ctx, appID, accountID)
}

type mapProjectCache struct {
	items  map[string]types.Project
	getErr error
	setErr error
}

func (c *mapProjectCache) GetProject(_ context.Context, key string) (types.Project, bool, error) {
	if c.getErr != nil {
		return types.Project{}, false, c.getErr
	}
	p, ok := c.items[key]
	return p, ok, nil
}

func (c *mapProjectCache) SetProject(_ context.Context, key string, p types.Project, _ time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.items[key] = p
	return nil
}

func TestProjectForUserAndAppID_UsesCache(t *testing.T) {
	ctx := context.Background()
	store := accessFixture(t)
	access := &countingAccessStore{AccessStore: store}
	cache := &mapProjectCache{items: map[string]types.Project{}}
	f := NewAccessFilter(access, zap.NewNop(), WithProjectCache(cache, time.Minute))

	for range 3 {
		p, ok, err := f.ProjectForUserAndAppID(ctx, types.AnonymousUser(), "org.demo")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(10), p.ID)
	}
	assert.Equal(t, 1, access.projectLookups)
	assert.Contains(t, cache.items, "project:app:org.demo:account:any")

	// authenticated lookups are cached per account
	_, _, err := f.ProjectForUserAndAppID(ctx, types.User{ID: 3, AccountID: 1}, "org.demo")
	require.NoError(t, err)
	assert.Equal(t, 2, access.projectLookups)
	assert.Contains(t, cache.items, "project:app:org.demo:account:1")
}

func TestProjectForUserAndAppID_CacheFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	store := accessFixture(t)
	cache := &mapProjectCache{items: map[string]types.Project{}, getErr: errors.New("redis down"), setErr: errors.New("redis down")}
	f := NewAccessFilter(store, zap.NewNop(), WithProjectCache(cache, 0))

	p, ok, err := f.ProjectForUserAndAppID(ctx, types.AnonymousUser(), "org.demo")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(10), p.ID)
}
