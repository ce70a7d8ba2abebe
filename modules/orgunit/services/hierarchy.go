package services

import (
	"context"

	"github.com/blsq/iaso/modules/orgunit/domain/ports"
	"github.com/blsq/iaso/modules/orgunit/domain/types"
	orgunitpkg "github.com/blsq/iaso/pkg/orgunit"
)

// Children narrows base to the direct children of unit.
func Children(base types.OrgUnitQuery, unit types.OrgUnit) (types.OrgUnitQuery, error) {
	if unit.IsPending() {
		return types.OrgUnitQuery{}, ports.ErrPathPending
	}
	return base.Where(types.ChildrenOf{Path: unit.Path.Clone()}), nil
}

// Descendants narrows base to every unit below unit, at any depth.
func Descendants(base types.OrgUnitQuery, unit types.OrgUnit) (types.OrgUnitQuery, error) {
	if unit.IsPending() {
		return types.OrgUnitQuery{}, ports.ErrPathPending
	}
	return base.Where(types.DescendantsOf{Path: unit.Path.Clone()}), nil
}

// Hierarchy narrows base to the given units and everything below them. Pending units contribute
// nothing; when none of them has a path the result is empty.
func Hierarchy(base types.OrgUnitQuery, units ...types.OrgUnit) types.OrgUnitQuery {
	paths := make([]orgunitpkg.Path, 0, len(units))
	for _, u := range units {
		if u.IsPending() {
			continue
		}
		paths = append(paths, u.Path.Clone())
	}
	if len(paths) == 0 {
		return base.None()
	}
	return base.Where(types.InHierarchyOf{Paths: paths})
}

// HierarchyOfQuery is Hierarchy against the units matched by roots, evaluated by the store.
func HierarchyOfQuery(base types.OrgUnitQuery, roots types.OrgUnitQuery) types.OrgUnitQuery {
	if roots.IsNone() {
		return base.None()
	}
	return base.Where(types.InHierarchyOfQuery{Query: roots.Unpaged()})
}

func (s *OrgUnitService) ListChildren(ctx context.Context, base types.OrgUnitQuery, unit types.OrgUnit) ([]types.OrgUnit, error) {
	q, err := Children(base, unit)
	if err != nil {
		return nil, err
	}
	return s.List(ctx, q)
}

func (s *OrgUnitService) ListDescendants(ctx context.Context, base types.OrgUnitQuery, unit types.OrgUnit) ([]types.OrgUnit, error) {
	q, err := Descendants(base, unit)
	if err != nil {
		return nil, err
	}
	return s.List(ctx, q)
}
