package types

import (
	"slices"

	orgunitpkg "github.com/blsq/iaso/pkg/orgunit"
)

// Predicate is one condition of an OrgUnitQuery. Stores translate each concrete predicate.
type Predicate interface {
	orgUnitPredicate()
}

type IDIn struct{ IDs []int64 }

type VersionIn struct{ IDs []int64 }

type TypeIn struct{ IDs []int64 }

type StatusIn struct{ Statuses []ValidationStatus }

type ParentIs struct{ ID int64 }

type RootsOnly struct{}

// NameContains matches case-insensitively on name and aliases.
type NameContains struct{ Text string }

type SourceRefIn struct{ Refs []string }

// ChildrenOf matches units whose path extends Path by exactly one segment.
type ChildrenOf struct{ Path orgunitpkg.Path }

// DescendantsOf matches units whose path strictly extends Path.
type DescendantsOf struct{ Path orgunitpkg.Path }

// InHierarchyOf matches units whose path starts with any of Paths, the owners of Paths included.
type InHierarchyOf struct{ Paths []orgunitpkg.Path }

// InHierarchyOfQuery is InHierarchyOf against the paths of the units matched by Query.
type InHierarchyOfQuery struct{ Query OrgUnitQuery }

type PathPending struct{}

// PathSeedable matches pending units that are roots or whose parent already has a path.
type PathSeedable struct{}

func (IDIn) orgUnitPredicate()               {}
func (VersionIn) orgUnitPredicate()          {}
func (TypeIn) orgUnitPredicate()             {}
func (StatusIn) orgUnitPredicate()           {}
func (ParentIs) orgUnitPredicate()           {}
func (RootsOnly) orgUnitPredicate()          {}
func (NameContains) orgUnitPredicate()       {}
func (SourceRefIn) orgUnitPredicate()        {}
func (ChildrenOf) orgUnitPredicate()         {}
func (DescendantsOf) orgUnitPredicate()      {}
func (InHierarchyOf) orgUnitPredicate()      {}
func (InHierarchyOfQuery) orgUnitPredicate() {}
func (PathPending) orgUnitPredicate()        {}
func (PathSeedable) orgUnitPredicate()       {}

type OrderField string

const (
	OrderByID   OrderField = "id"
	OrderByName OrderField = "name"
	OrderByPath OrderField = "path"
)

// OrgUnitQuery is a lazily evaluated, composable filter over org units. All predicates are ANDed.
// Values are immutable: every builder method returns a new query.
type OrgUnitQuery struct {
	predicates []Predicate
	none       bool
	limit      int
	offset     int
	order      []OrderField
}

func NewOrgUnitQuery(preds ...Predicate) OrgUnitQuery {
	return OrgUnitQuery{}.Where(preds...)
}

// NoneQuery matches nothing.
func NoneQuery() OrgUnitQuery { return OrgUnitQuery{none: true} }

func (q OrgUnitQuery) Where(preds ...Predicate) OrgUnitQuery {
	out := q.clone()
	for _, p := range preds {
		if p != nil {
			out.predicates = append(out.predicates, p)
		}
	}
	return out
}

func (q OrgUnitQuery) None() OrgUnitQuery {
	out := q.clone()
	out.none = true
	return out
}

func (q OrgUnitQuery) WithLimit(n int) OrgUnitQuery {
	out := q.clone()
	out.limit = max(n, 0)
	return out
}

func (q OrgUnitQuery) WithOffset(n int) OrgUnitQuery {
	out := q.clone()
	out.offset = max(n, 0)
	return out
}

func (q OrgUnitQuery) OrderBy(fields ...OrderField) OrgUnitQuery {
	out := q.clone()
	out.order = slices.Clone(fields)
	return out
}

func (q OrgUnitQuery) IsNone() bool { return q.none }

func (q OrgUnitQuery) Predicates() []Predicate { return slices.Clone(q.predicates) }

func (q OrgUnitQuery) Limit() int { return q.limit }

func (q OrgUnitQuery) Offset() int { return q.offset }

func (q OrgUnitQuery) Order() []OrderField { return slices.Clone(q.order) }

// Unpaged drops limit, offset and ordering, as needed when the query feeds a subquery.
func (q OrgUnitQuery) Unpaged() OrgUnitQuery {
	out := q.clone()
	out.limit, out.offset, out.order = 0, 0, nil
	return out
}

func (q OrgUnitQuery) clone() OrgUnitQuery {
	out := q
	out.predicates = slices.Clone(q.predicates)
	out.order = slices.Clone(q.order)
	return out
}
