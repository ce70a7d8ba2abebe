package services

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blsq/iaso/modules/orgunit/domain/types"
	"github.com/blsq/iaso/modules/orgunit/infrastructure/persistence"
	"github.com/blsq/iaso/pkg/metrics"
	orgunitpkg "github.com/blsq/iaso/pkg/orgunit"
)

func importedUnit(id int64, parent *int64, version *int64) types.OrgUnit {
	return types.OrgUnit{
		ID:               id,
		Name:             "unit",
		ParentID:         parent,
		VersionID:        version,
		ValidationStatus: types.ValidationStatusNew,
	}
}

func TestPathSeeder_SeedsImportedTree(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	// 1 > 2 > 3, 1 > 4, and a second root 5 > 6
	store.PutOrgUnit(importedUnit(1, nil, nil))
	store.PutOrgUnit(importedUnit(2, ptr(int64(1)), nil))
	store.PutOrgUnit(importedUnit(3, ptr(int64(2)), nil))
	store.PutOrgUnit(importedUnit(4, ptr(int64(1)), nil))
	store.PutOrgUnit(importedUnit(5, nil, nil))
	store.PutOrgUnit(importedUnit(6, ptr(int64(5)), nil))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "iaso", nil)
	seeder := NewPathSeeder(NewOrgUnitService(store, zap.NewNop(), m), 1, zap.NewNop())

	report, err := seeder.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, report.Seeded)
	assert.Zero(t, report.Remaining)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 3, report.Rounds)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PathSeedRuns.WithLabelValues("ok")))

	want := map[int64]orgunitpkg.Path{
		1: {1}, 2: {1, 2}, 3: {1, 2, 3}, 4: {1, 4}, 5: {5}, 6: {5, 6},
	}
	for id, path := range want {
		u, err := store.GetOrgUnit(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, path, u.Path, "unit %d", id)
		assert.Equal(t, types.PathStateSeeded, u.PathState)
	}

	again, err := seeder.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Seeded)
	assert.Equal(t, 1, again.Rounds)
}

func TestPathSeeder_ResumesUnderSeededParent(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	store.PutOrgUnit(types.OrgUnit{ID: 1, Name: "root", Path: orgunitpkg.Path{1}, ValidationStatus: types.ValidationStatusValid})
	store.PutOrgUnit(importedUnit(2, ptr(int64(1)), nil))
	store.PutOrgUnit(importedUnit(3, ptr(int64(2)), nil))

	report, err := NewPathSeeder(NewOrgUnitService(store, zap.NewNop(), nil), 0, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Seeded)

	u, err := store.GetOrgUnit(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, orgunitpkg.Path{1, 2, 3}, u.Path)
}

func TestPathSeeder_SkipsFailuresAndOrphans(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	store.PutOrgUnit(types.OrgUnit{ID: 1, Name: "root", Path: orgunitpkg.Path{1}, VersionID: ptr(int64(1)), ValidationStatus: types.ValidationStatusValid})
	// parent in another version: the save is rejected
	store.PutOrgUnit(importedUnit(2, ptr(int64(1)), ptr(int64(2))))
	// parent missing: never seedable
	store.PutOrgUnit(importedUnit(3, ptr(int64(99)), nil))
	store.PutOrgUnit(importedUnit(4, nil, nil))

	report, err := NewPathSeeder(NewOrgUnitService(store, zap.NewNop(), nil), 10, zap.NewNop()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Seeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Remaining)
}

func TestPathSeeder_CancelledRunReportsRemaining(t *testing.T) {
	store := persistence.NewMemoryStore()
	store.PutOrgUnit(importedUnit(1, nil, nil))
	store.PutOrgUnit(importedUnit(2, ptr(int64(1)), nil))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "iaso", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewPathSeeder(NewOrgUnitService(store, zap.NewNop(), m), 10, zap.NewNop()).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, report.Remaining)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PathSeedRuns.WithLabelValues("cancelled")))
}
