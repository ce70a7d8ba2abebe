package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/blsq/iaso/modules/orgunit/domain/ports"
	"github.com/blsq/iaso/modules/orgunit/domain/types"
	"github.com/blsq/iaso/pkg/httperr"
)

const shortNameLen = 4

type OrgUnitTypeService struct {
	store  ports.OrgUnitTypeStore
	logger *zap.Logger
}

func NewOrgUnitTypeService(store ports.OrgUnitTypeStore, logger *zap.Logger) *OrgUnitTypeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrgUnitTypeService{store: store, logger: logger}
}

func (s *OrgUnitTypeService) Get(ctx context.Context, id int64) (types.OrgUnitType, error) {
	return s.store.GetOrgUnitType(ctx, id)
}

func (s *OrgUnitTypeService) List(ctx context.Context, filter types.OrgUnitTypeFilter) ([]types.OrgUnitType, error) {
	return s.store.ListOrgUnitTypes(ctx, filter)
}

// GetOrCreateOrgUnitType returns the canonical type for (name, depth) within account. Types of the
// preferred project win over types reachable through any other project of the account or owned by
// it; among several matches the lowest id wins. When nothing matches a new type owned by account
// is created, so that repeating the call returns it.
func (s *OrgUnitTypeService) GetOrCreateOrgUnitType(ctx context.Context, name string, depth *int, account types.Account, preferred *types.Project) (types.OrgUnitType, error) {
	if preferred != nil && preferred.AccountID != account.ID {
		return types.OrgUnitType{}, ports.ErrProjectAccountMismatch
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return types.OrgUnitType{}, httperr.NewBadRequest("name is required")
	}

	base := types.OrgUnitTypeFilter{Name: &name, MatchDepth: true, Depth: depth}

	if preferred != nil {
		filter := base
		filter.ProjectIDs = []int64{preferred.ID}
		found, err := s.store.ListOrgUnitTypes(ctx, filter)
		if err != nil {
			return types.OrgUnitType{}, err
		}
		if len(found) > 0 {
			s.logDuplicates(name, depth, found)
			return found[0], nil
		}
	}

	filter := base
	accountID := account.ID
	filter.AccountID = &accountID
	found, err := s.store.ListOrgUnitTypes(ctx, filter)
	if err != nil {
		return types.OrgUnitType{}, err
	}
	if len(found) > 0 {
		s.logDuplicates(name, depth, found)
		return found[0], nil
	}

	created, err := s.store.CreateOrgUnitType(ctx, types.OrgUnitType{
		Name:      name,
		ShortName: shortName(name),
		Depth:     depth,
		AccountID: &accountID,
	})
	if err != nil {
		return types.OrgUnitType{}, err
	}
	s.logger.Info("org unit type created",
		zap.Int64("org_unit_type_id", created.ID),
		zap.String("name", name),
		zap.Int64("account_id", account.ID),
	)
	return created, nil
}

func (s *OrgUnitTypeService) logDuplicates(name string, depth *int, found []types.OrgUnitType) {
	if len(found) < 2 {
		return
	}
	ids := make([]int64, len(found))
	for i, t := range found {
		ids[i] = t.ID
	}
	s.logger.Warn("duplicate org unit types, lowest id kept",
		zap.String("name", name),
		zap.Intp("depth", depth),
		zap.Int64s("ids", ids),
	)
}

func shortName(name string) string {
	r := []rune(name)
	if len(r) > shortNameLen {
		r = r[:shortNameLen]
	}
	return string(r)
}
