package persistence

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/blsq/iaso/modules/orgunit/domain/ports"
	"github.com/blsq/iaso/modules/orgunit/domain/types"
	orgunitpkg "github.com/blsq/iaso/pkg/orgunit"
)

// MemoryStore keeps org units, types and access data in process. Transactions work on a copy of
// the unit table that replaces the original on success; writers are serialized.
type MemoryStore struct {
	mu sync.RWMutex

	units      map[int64]types.OrgUnit
	nextUnitID int64
	changes    []types.OrgUnitChange

	unitTypes  map[int64]types.OrgUnitType
	nextTypeID int64

	accounts    map[int64]types.Account
	projects    map[int64]types.Project
	dataSources map[int64]types.DataSource
	versions    map[int64]types.SourceVersion
	users       map[int64]types.User

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		units:       make(map[int64]types.OrgUnit),
		nextUnitID:  1,
		unitTypes:   make(map[int64]types.OrgUnitType),
		nextTypeID:  1,
		accounts:    make(map[int64]types.Account),
		projects:    make(map[int64]types.Project),
		dataSources: make(map[int64]types.DataSource),
		versions:    make(map[int64]types.SourceVersion),
		users:       make(map[int64]types.User),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

var (
	_ ports.OrgUnitStore     = (*MemoryStore)(nil)
	_ ports.OrgUnitTypeStore = (*MemoryStore)(nil)
	_ ports.AccessStore      = (*MemoryStore)(nil)
)

func (s *MemoryStore) GetOrgUnit(_ context.Context, id int64) (types.OrgUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[id]
	if !ok {
		return types.OrgUnit{}, ports.ErrOrgUnitNotFound
	}
	return u.Clone(), nil
}

func (s *MemoryStore) ListOrgUnits(_ context.Context, q types.OrgUnitQuery) ([]types.OrgUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return page(evalQuery(s.units, q), q), nil
}

func (s *MemoryStore) CountOrgUnits(_ context.Context, q types.OrgUnitQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(evalQuery(s.units, q)), nil
}

func (s *MemoryStore) ResolveSourceRef(_ context.Context, versionID int64, sourceRef string) (int64, error) {
	ref, err := orgunitpkg.NormalizeSourceRef(sourceRef)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found int64
	for id, u := range s.units {
		if u.VersionID == nil || *u.VersionID != versionID || u.SourceRef == nil || *u.SourceRef != ref {
			continue
		}
		if found == 0 || id < found {
			found = id
		}
	}
	if found == 0 {
		return 0, orgunitpkg.ErrSourceRefNotFound
	}
	return found, nil
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx ports.OrgUnitTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		units:  maps.Clone(s.units),
		nextID: s.nextUnitID,
		now:    s.now,
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.units = tx.units
	s.nextUnitID = tx.nextID
	s.changes = append(s.changes, tx.changes...)
	return nil
}

// Changes returns the audit trail in commit order.
func (s *MemoryStore) Changes() []types.OrgUnitChange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.changes)
}

// PutOrgUnit stores u as is, bypassing path maintenance. Used to load fixtures and imports.
func (s *MemoryStore) PutOrgUnit(u types.OrgUnit) types.OrgUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.nextUnitID
	}
	if u.ID >= s.nextUnitID {
		s.nextUnitID = u.ID + 1
	}
	if u.PathState == "" {
		u.PathState = types.PathStatePending
		if u.Path != nil {
			u.PathState = types.PathStateSeeded
		}
	}
	s.units[u.ID] = u.Clone()
	return u.Clone()
}

type memoryTx struct {
	units   map[int64]types.OrgUnit
	nextID  int64
	changes []types.OrgUnitChange
	now     func() time.Time
}

func (t *memoryTx) Get(_ context.Context, id int64) (types.OrgUnit, error) {
	u, ok := t.units[id]
	if !ok {
		return types.OrgUnit{}, ports.ErrOrgUnitNotFound
	}
	return u.Clone(), nil
}

func (t *memoryTx) Insert(_ context.Context, unit types.OrgUnit) (types.OrgUnit, error) {
	unit = unit.Clone()
	unit.ID = t.nextID
	t.nextID++
	unit.Path = nil
	unit.PathState = types.PathStatePending
	now := t.now()
	unit.CreatedAt, unit.UpdatedAt = now, now
	t.units[unit.ID] = unit
	return unit.Clone(), nil
}

func (t *memoryTx) Update(_ context.Context, unit types.OrgUnit) (types.OrgUnit, error) {
	prev, ok := t.units[unit.ID]
	if !ok {
		return types.OrgUnit{}, ports.ErrOrgUnitNotFound
	}
	unit = unit.Clone()
	unit.Path, unit.PathState = prev.Path, prev.PathState
	unit.CreatedAt = prev.CreatedAt
	unit.UpdatedAt = t.now()
	t.units[unit.ID] = unit
	return unit.Clone(), nil
}

func (t *memoryTx) LockSubtree(_ context.Context, id int64) ([]types.OrgUnit, error) {
	root, ok := t.units[id]
	if !ok {
		return nil, nil
	}
	children := make(map[int64][]int64)
	for _, u := range t.units {
		if u.ParentID != nil {
			children[*u.ParentID] = append(children[*u.ParentID], u.ID)
		}
	}
	out := []types.OrgUnit{root.Clone()}
	seen := map[int64]bool{id: true}
	queue := []int64{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		ids := children[cur]
		slices.Sort(ids)
		for _, childID := range ids {
			if seen[childID] {
				continue
			}
			seen[childID] = true
			out = append(out, t.units[childID].Clone())
			queue = append(queue, childID)
		}
	}
	return out, nil
}

func (t *memoryTx) UpdatePaths(_ context.Context, units []types.OrgUnit) error {
	for _, u := range units {
		cur, ok := t.units[u.ID]
		if !ok {
			return ports.ErrOrgUnitNotFound
		}
		cur.Path = u.Path.Clone()
		cur.PathState = u.PathState
		t.units[u.ID] = cur
	}
	seen := make(map[string]int64, len(t.units))
	for _, u := range t.units {
		if u.Path == nil {
			continue
		}
		key := u.Path.String()
		if other, dup := seen[key]; dup && other != u.ID {
			return ports.ErrPathConflict
		}
		seen[key] = u.ID
	}
	return nil
}

func (t *memoryTx) InsertChanges(_ context.Context, changes []types.OrgUnitChange) error {
	t.changes = append(t.changes, changes...)
	return nil
}

func evalQuery(units map[int64]types.OrgUnit, q types.OrgUnitQuery) []types.OrgUnit {
	if q.IsNone() {
		return nil
	}
	preds := q.Predicates()
	resolved := make([]types.Predicate, len(preds))
	for i, p := range preds {
		// Subqueries are resolved once against the same snapshot.
		if sub, ok := p.(types.InHierarchyOfQuery); ok {
			var paths []orgunitpkg.Path
			for _, u := range evalQuery(units, sub.Query) {
				if u.Path != nil {
					paths = append(paths, u.Path)
				}
			}
			resolved[i] = types.InHierarchyOf{Paths: paths}
			continue
		}
		resolved[i] = p
	}

	out := make([]types.OrgUnit, 0)
	for _, u := range units {
		if matchAll(units, u, resolved) {
			out = append(out, u.Clone())
		}
	}
	sortUnits(out, q.Order())
	return out
}

func matchAll(units map[int64]types.OrgUnit, u types.OrgUnit, preds []types.Predicate) bool {
	for _, p := range preds {
		if !match(units, u, p) {
			return false
		}
	}
	return true
}

func match(units map[int64]types.OrgUnit, u types.OrgUnit, p types.Predicate) bool {
	switch p := p.(type) {
	case types.IDIn:
		return slices.Contains(p.IDs, u.ID)
	case types.VersionIn:
		return u.VersionID != nil && slices.Contains(p.IDs, *u.VersionID)
	case types.TypeIn:
		return u.OrgUnitTypeID != nil && slices.Contains(p.IDs, *u.OrgUnitTypeID)
	case types.StatusIn:
		return slices.Contains(p.Statuses, u.ValidationStatus)
	case types.ParentIs:
		return u.ParentID != nil && *u.ParentID == p.ID
	case types.RootsOnly:
		return u.ParentID == nil
	case types.NameContains:
		needle := strings.ToLower(p.Text)
		if strings.Contains(strings.ToLower(u.Name), needle) {
			return true
		}
		return slices.ContainsFunc(u.Aliases, func(a string) bool {
			return strings.Contains(strings.ToLower(a), needle)
		})
	case types.SourceRefIn:
		return u.SourceRef != nil && slices.Contains(p.Refs, *u.SourceRef)
	case types.ChildrenOf:
		return u.Path.IsChildOf(p.Path)
	case types.DescendantsOf:
		return u.Path.IsDescendantOf(p.Path)
	case types.InHierarchyOf:
		return slices.ContainsFunc(p.Paths, func(prefix orgunitpkg.Path) bool {
			return u.Path.HasPrefix(prefix)
		})
	case types.PathPending:
		return u.Path == nil
	case types.PathSeedable:
		if u.Path != nil {
			return false
		}
		if u.ParentID == nil {
			return true
		}
		parent, ok := units[*u.ParentID]
		return ok && parent.Path != nil
	default:
		return false
	}
}

func sortUnits(units []types.OrgUnit, order []types.OrderField) {
	slices.SortFunc(units, func(a, b types.OrgUnit) int {
		for _, f := range order {
			var c int
			switch f {
			case types.OrderByName:
				c = cmp.Compare(a.Name, b.Name)
			case types.OrderByPath:
				c = slices.Compare(a.Path, b.Path)
			case types.OrderByID:
				c = cmp.Compare(a.ID, b.ID)
			}
			if c != 0 {
				return c
			}
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func page(units []types.OrgUnit, q types.OrgUnitQuery) []types.OrgUnit {
	if off := q.Offset(); off > 0 {
		if off >= len(units) {
			return []types.OrgUnit{}
		}
		units = units[off:]
	}
	if limit := q.Limit(); limit > 0 && limit < len(units) {
		units = units[:limit]
	}
	return units
}
