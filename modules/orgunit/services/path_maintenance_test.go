package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blsq/iaso/modules/orgunit/domain/types"
	orgunitpkg "github.com/blsq/iaso/pkg/orgunit"
)

func ptr[T any](v T) *T { return &v }

func seeded(id int64, parent *int64, path ...int64) types.OrgUnit {
	return types.OrgUnit{ID: id, Name: "u", ParentID: parent, Path: orgunitpkg.Path(path), PathState: types.PathStateSeeded}
}

func pending(id int64, parent *int64) types.OrgUnit {
	return types.OrgUnit{ID: id, Name: "u", ParentID: parent, PathState: types.PathStatePending}
}

func changedIDs(units []types.OrgUnit) []int64 {
	out := make([]int64, len(units))
	for i, u := range units {
		out[i] = u.ID
	}
	return out
}

func TestCalculatePaths_Root(t *testing.T) {
	unit := pending(1, nil)
	calc := CalculatePaths(unit, nil, NewPathTree([]types.OrgUnit{unit}), false)

	require.Len(t, calc.Changed, 1)
	assert.Equal(t, orgunitpkg.Path{1}, calc.Changed[0].Path)
	assert.Equal(t, types.PathStateSeeded, calc.Changed[0].PathState)
	assert.False(t, calc.Deferred)
}

func TestCalculatePaths_ChildAppendsOwnID(t *testing.T) {
	parent := seeded(1, nil, 1)
	unit := pending(2, ptr(int64(1)))
	calc := CalculatePaths(unit, &parent, nil, false)

	require.Len(t, calc.Changed, 1)
	assert.Equal(t, orgunitpkg.Path{1, 2}, calc.Changed[0].Path)
}

func TestCalculatePaths_MovePropagatesToDescendants(t *testing.T) {
	// 1 > 2 > 3, 2 moves under root 4
	subtree := []types.OrgUnit{
		seeded(2, ptr(int64(1)), 1, 2),
		seeded(3, ptr(int64(2)), 1, 2, 3),
	}
	newParent := seeded(4, nil, 4)
	moved := subtree[0]
	moved.ParentID = ptr(int64(4))

	calc := CalculatePaths(moved, &newParent, NewPathTree(subtree), false)

	require.Equal(t, []int64{2, 3}, changedIDs(calc.Changed))
	assert.Equal(t, orgunitpkg.Path{4, 2}, calc.Changed[0].Path)
	assert.Equal(t, orgunitpkg.Path{4, 2, 3}, calc.Changed[1].Path)
	// the snapshot passed in is not touched
	assert.Equal(t, orgunitpkg.Path{1, 2, 3}, subtree[1].Path)
}

func TestCalculatePaths_UnchangedStopsWithoutForce(t *testing.T) {
	// 3 carries a stale path but 2 did not change, so it is not visited
	tree := NewPathTree([]types.OrgUnit{
		seeded(2, ptr(int64(1)), 1, 2),
		seeded(3, ptr(int64(2)), 9, 9, 3),
	})
	parent := seeded(1, nil, 1)
	unit, _ := tree.Get(2)

	calc := CalculatePaths(unit, &parent, tree, false)
	assert.Empty(t, calc.Changed)

	calc = CalculatePaths(unit, &parent, tree, true)
	require.Equal(t, []int64{3}, changedIDs(calc.Changed))
	assert.Equal(t, orgunitpkg.Path{1, 2, 3}, calc.Changed[0].Path)
}

func TestCalculatePaths_ForceTwiceIsStable(t *testing.T) {
	tree := NewPathTree([]types.OrgUnit{
		pending(1, nil),
		pending(2, ptr(int64(1))),
		pending(3, ptr(int64(2))),
		pending(4, ptr(int64(1))),
	})
	unit, _ := tree.Get(1)

	first := CalculatePaths(unit, nil, tree, true)
	assert.Equal(t, []int64{1, 2, 3, 4}, changedIDs(first.Changed))

	unit, _ = tree.Get(1)
	second := CalculatePaths(unit, nil, tree, true)
	assert.Empty(t, second.Changed)
}

func TestCalculatePaths_PendingParentDefers(t *testing.T) {
	parent := pending(1, nil)
	tree := NewPathTree([]types.OrgUnit{
		seeded(2, ptr(int64(9)), 9, 2),
		seeded(3, ptr(int64(2)), 9, 2, 3),
	})
	unit, _ := tree.Get(2)
	unit.ParentID = ptr(int64(1))

	calc := CalculatePaths(unit, &parent, tree, false)

	assert.True(t, calc.Deferred)
	require.Equal(t, []int64{2, 3}, changedIDs(calc.Changed))
	for _, u := range calc.Changed {
		assert.Nil(t, u.Path)
		assert.Equal(t, types.PathStatePending, u.PathState)
	}
}

func TestCalculatePaths_PendingParentAlreadyPendingUnit(t *testing.T) {
	parent := pending(1, nil)
	unit := pending(2, ptr(int64(1)))

	calc := CalculatePaths(unit, &parent, nil, false)
	assert.True(t, calc.Deferred)
	assert.Empty(t, calc.Changed)
}

func TestCalculatePaths_CorruptCycleTerminates(t *testing.T) {
	tree := NewPathTree([]types.OrgUnit{
		pending(1, ptr(int64(2))),
		pending(2, ptr(int64(1))),
	})
	unit, _ := tree.Get(1)
	unit.ParentID = nil

	calc := CalculatePaths(unit, nil, tree, true)
	assert.Equal(t, []int64{1, 2}, changedIDs(calc.Changed))
}

func TestPathTree_ReparentMovesChildIndex(t *testing.T) {
	tree := NewPathTree([]types.OrgUnit{seeded(1, nil, 1), seeded(2, ptr(int64(1)), 1, 2)})
	assert.Equal(t, []int64{2}, tree.Children(1))

	moved, _ := tree.Get(2)
	moved.ParentID = nil
	CalculatePaths(moved, nil, tree, false)

	assert.Empty(t, tree.Children(1))
	got, ok := tree.Get(2)
	require.True(t, ok)
	assert.Equal(t, orgunitpkg.Path{2}, got.Path)
}
