package services

import (
	"slices"

	"github.com/blsq/iaso/modules/orgunit/domain/types"
	orgunitpkg "github.com/blsq/iaso/pkg/orgunit"
)

// PathTree is an in-memory snapshot of a unit and the units below it through parent pointers.
type PathTree struct {
	units    map[int64]types.OrgUnit
	children map[int64][]int64
}

func NewPathTree(units []types.OrgUnit) *PathTree {
	t := &PathTree{
		units:    make(map[int64]types.OrgUnit, len(units)),
		children: make(map[int64][]int64),
	}
	for _, u := range units {
		t.put(u.Clone())
	}
	return t
}

func (t *PathTree) Get(id int64) (types.OrgUnit, bool) {
	u, ok := t.units[id]
	if !ok {
		return types.OrgUnit{}, false
	}
	return u.Clone(), true
}

func (t *PathTree) Contains(id int64) bool {
	_, ok := t.units[id]
	return ok
}

func (t *PathTree) Len() int { return len(t.units) }

// Children returns direct child ids in ascending order.
func (t *PathTree) Children(id int64) []int64 {
	return slices.Clone(t.children[id])
}

func (t *PathTree) put(u types.OrgUnit) {
	if prev, ok := t.units[u.ID]; ok && prev.ParentID != nil {
		t.detach(*prev.ParentID, u.ID)
	}
	t.units[u.ID] = u
	if u.ParentID != nil {
		ids := t.children[*u.ParentID]
		pos, found := slices.BinarySearch(ids, u.ID)
		if !found {
			t.children[*u.ParentID] = slices.Insert(ids, pos, u.ID)
		}
	}
}

func (t *PathTree) detach(parentID int64, id int64) {
	ids := t.children[parentID]
	if pos, found := slices.BinarySearch(ids, id); found {
		t.children[parentID] = slices.Delete(ids, pos, pos+1)
	}
}

type PathCalculation struct {
	// Changed holds the units whose path or path state differs from the snapshot, unit first.
	Changed []types.OrgUnit
	// Deferred is set when the parent had no path yet; the affected units are left PENDING.
	Deferred bool
}

// CalculatePaths recomputes the path of unit from its parent and propagates the result down the
// tree. Children are visited when the unit's path changed or force is set. Nothing is persisted;
// the tree is updated in place so that a repeated call reports no further change.
func CalculatePaths(unit types.OrgUnit, parent *types.OrgUnit, tree *PathTree, force bool) PathCalculation {
	if tree == nil {
		tree = NewPathTree(nil)
	}
	tree.put(unit.Clone())

	var calc PathCalculation
	visited := make(map[int64]bool, tree.Len())
	if parent != nil && parent.IsPending() {
		calc.Deferred = true
		calc.visit(tree, unit.ID, nil, true, force, visited)
		return calc
	}
	var parentPath orgunitpkg.Path
	if parent != nil {
		parentPath = parent.Path
	}
	calc.visit(tree, unit.ID, parentPath, false, force, visited)
	return calc
}

func (c *PathCalculation) visit(tree *PathTree, id int64, parentPath orgunitpkg.Path, pending bool, force bool, visited map[int64]bool) {
	if visited[id] {
		return
	}
	visited[id] = true

	u := tree.units[id]
	var newPath orgunitpkg.Path
	newState := types.PathStatePending
	if !pending {
		newPath = parentPath.Child(id)
		newState = types.PathStateSeeded
	}

	changed := u.PathState != newState || !u.Path.Equal(newPath)
	if changed {
		u.Path = newPath
		u.PathState = newState
		tree.units[id] = u
		c.Changed = append(c.Changed, u.Clone())
	}
	if !changed && !force {
		return
	}
	for _, childID := range tree.children[id] {
		c.visit(tree, childID, newPath, pending, force, visited)
	}
}
