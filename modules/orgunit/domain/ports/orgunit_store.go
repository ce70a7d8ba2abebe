package ports

import (
	"context"
	"errors"

	"github.com/blsq/iaso/modules/orgunit/domain/types"
)

var (
	ErrOrgUnitNotFound        = errors.New("org_unit_not_found")
	ErrOrgUnitTypeNotFound    = errors.New("org_unit_type_not_found")
	ErrProjectNotFound        = errors.New("project_not_found")
	ErrAccountNotFound        = errors.New("account_not_found")
	ErrProfileNotFound        = errors.New("profile_not_found")
	ErrPathPending            = errors.New("org_unit_path_pending")
	ErrParentVersionMismatch  = errors.New("parent_version_mismatch")
	ErrParentCycle            = errors.New("parent_cycle")
	ErrProjectAccountMismatch = errors.New("project_account_mismatch")
	ErrPathConflict           = errors.New("path_conflict")
)

type OrgUnitReader interface {
	GetOrgUnit(ctx context.Context, id int64) (types.OrgUnit, error)
	ListOrgUnits(ctx context.Context, q types.OrgUnitQuery) ([]types.OrgUnit, error)
	CountOrgUnits(ctx context.Context, q types.OrgUnitQuery) (int, error)
	// ResolveSourceRef returns the lowest id carrying sourceRef inside the version.
	ResolveSourceRef(ctx context.Context, versionID int64, sourceRef string) (int64, error)
}

// OrgUnitStore is the org unit table. Structural writes go through InTx so that the row,
// the recalculated descendant paths and the audit trail commit together.
type OrgUnitStore interface {
	OrgUnitReader
	InTx(ctx context.Context, fn func(tx OrgUnitTx) error) error
}

type OrgUnitTx interface {
	Get(ctx context.Context, id int64) (types.OrgUnit, error)
	// Insert stores a new unit with no path and returns it with its assigned id and timestamps.
	Insert(ctx context.Context, unit types.OrgUnit) (types.OrgUnit, error)
	// Update writes every column except path and path_state.
	Update(ctx context.Context, unit types.OrgUnit) (types.OrgUnit, error)
	// LockSubtree locks the unit and every unit reachable through parent pointers below it,
	// returning them root first.
	LockSubtree(ctx context.Context, id int64) ([]types.OrgUnit, error)
	UpdatePaths(ctx context.Context, units []types.OrgUnit) error
	InsertChanges(ctx context.Context, changes []types.OrgUnitChange) error
}
