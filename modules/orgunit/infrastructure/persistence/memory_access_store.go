package persistence

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/blsq/iaso/modules/orgunit/domain/ports"
	"github.com/blsq/iaso/modules/orgunit/domain/types"
)

func (s *MemoryStore) PutAccount(a types.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

func (s *MemoryStore) PutProject(p types.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.OrgUnitTypeIDs = slices.Clone(p.OrgUnitTypeIDs)
	s.projects[p.ID] = p
}

func (s *MemoryStore) PutDataSource(d types.DataSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ProjectIDs = slices.Clone(d.ProjectIDs)
	s.dataSources[d.ID] = d
}

func (s *MemoryStore) PutVersion(v types.SourceVersion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[v.ID] = v
}

func (s *MemoryStore) PutUser(u types.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.OrgUnitIDs = slices.Clone(u.OrgUnitIDs)
	s.users[u.ID] = u
}

func (s *MemoryStore) GetUser(_ context.Context, id int64) (types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return types.User{}, ports.ErrProfileNotFound
	}
	u.OrgUnitIDs = slices.Clone(u.OrgUnitIDs)
	return u, nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id int64) (types.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return types.Account{}, ports.ErrAccountNotFound
	}
	return a, nil
}

func (s *MemoryStore) FindProjectByAppID(_ context.Context, appID string, accountID *int64) (types.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *types.Project
	for _, p := range s.projects {
		if p.AppID != appID {
			continue
		}
		if accountID != nil && p.AccountID != *accountID {
			continue
		}
		if found == nil || p.ID < found.ID {
			found = &p
		}
	}
	if found == nil {
		return types.Project{}, ports.ErrProjectNotFound
	}
	out := *found
	out.OrgUnitTypeIDs = slices.Clone(out.OrgUnitTypeIDs)
	return out, nil
}

func (s *MemoryStore) ListAccountVersionIDs(_ context.Context, accountID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	projectIDs := s.accountProjectIDsLocked(accountID)
	sources := make(map[int64]bool)
	for _, d := range s.dataSources {
		for _, pid := range d.ProjectIDs {
			if slices.Contains(projectIDs, pid) {
				sources[d.ID] = true
				break
			}
		}
	}
	out := make([]int64, 0)
	for _, v := range s.versions {
		if sources[v.DataSourceID] {
			out = append(out, v.ID)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *MemoryStore) accountProjectIDsLocked(accountID int64) []int64 {
	var out []int64
	for _, p := range s.projects {
		if p.AccountID == accountID {
			out = append(out, p.ID)
		}
	}
	slices.Sort(out)
	return out
}

func (s *MemoryStore) GetOrgUnitType(_ context.Context, id int64) (types.OrgUnitType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.unitTypes[id]
	if !ok {
		return types.OrgUnitType{}, ports.ErrOrgUnitTypeNotFound
	}
	return cloneType(t), nil
}

func (s *MemoryStore) ListOrgUnitTypes(_ context.Context, filter types.OrgUnitTypeFilter) ([]types.OrgUnitType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var accountProjects []int64
	if filter.AccountID != nil {
		accountProjects = s.accountProjectIDsLocked(*filter.AccountID)
	}
	out := make([]types.OrgUnitType, 0)
	for _, t := range s.unitTypes {
		if filter.Name != nil && t.Name != *filter.Name {
			continue
		}
		if filter.MatchDepth && !types.SameDepth(t.Depth, filter.Depth) {
			continue
		}
		if filter.ProjectIDs != nil && !intersects(t.ProjectIDs, filter.ProjectIDs) {
			continue
		}
		if filter.AccountID != nil {
			owned := t.AccountID != nil && *t.AccountID == *filter.AccountID
			if !owned && !intersects(t.ProjectIDs, accountProjects) {
				continue
			}
		}
		out = append(out, cloneType(t))
	}
	slices.SortFunc(out, func(a, b types.OrgUnitType) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) CreateOrgUnitType(_ context.Context, t types.OrgUnitType) (types.OrgUnitType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t = cloneType(t)
	t.Name = strings.TrimSpace(t.Name)
	if t.ID == 0 {
		t.ID = s.nextTypeID
	}
	if t.ID >= s.nextTypeID {
		s.nextTypeID = t.ID + 1
	}
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	s.unitTypes[t.ID] = t
	return cloneType(t), nil
}

func cloneType(t types.OrgUnitType) types.OrgUnitType {
	t.SubUnitTypeIDs = slices.Clone(t.SubUnitTypeIDs)
	t.ProjectIDs = slices.Clone(t.ProjectIDs)
	if t.Depth != nil {
		d := *t.Depth
		t.Depth = &d
	}
	if t.AccountID != nil {
		a := *t.AccountID
		t.AccountID = &a
	}
	return t
}

func intersects(a, b []int64) bool {
	for _, v := range a {
		if slices.Contains(b, v) {
			return true
		}
	}
	return false
}
