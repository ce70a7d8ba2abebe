package ports

import (
	"context"

	"github.com/blsq/iaso/modules/orgunit/domain/types"
)

type OrgUnitTypeStore interface {
	GetOrgUnitType(ctx context.Context, id int64) (types.OrgUnitType, error)
	// ListOrgUnitTypes returns matches ordered by id ascending.
	ListOrgUnitTypes(ctx context.Context, filter types.OrgUnitTypeFilter) ([]types.OrgUnitType, error)
	CreateOrgUnitType(ctx context.Context, t types.OrgUnitType) (types.OrgUnitType, error)
}
