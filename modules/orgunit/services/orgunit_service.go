package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/blsq/iaso/modules/orgunit/domain/ports"
	"github.com/blsq/iaso/modules/orgunit/domain/types"
	"github.com/blsq/iaso/pkg/httperr"
	"github.com/blsq/iaso/pkg/metrics"
	orgunitpkg "github.com/blsq/iaso/pkg/orgunit"
)

var ErrParentNotFound = errors.New("parent_not_found")

const maxNameLen = 255

var (
	tracer      = otel.Tracer("github.com/blsq/iaso/modules/orgunit/services")
	newChangeID = func() (string, error) {
		id, err := uuid.NewV7()
		if err != nil {
			return "", err
		}
		return id.String(), nil
	}
	nowUTC = func() time.Time { return time.Now().UTC() }
)

type SaveOptions struct {
	ForceRecalculate  bool
	SkipCalculatePath bool
	UserID            *int64
}

type SaveResult struct {
	Unit types.OrgUnit
	// Changed lists every unit whose path or path state was rewritten, the saved unit included.
	Changed  []types.OrgUnit
	Deferred bool
}

type CreateOrgUnitRequest struct {
	Name     string
	ParentID *int64
	// ParentSourceRef names the parent by its external identifier inside VersionID.
	ParentSourceRef  string
	OrgUnitTypeID    *int64
	VersionID        *int64
	ValidationStatus types.ValidationStatus
	Location         *orb.Point
	Altitude         *float64
	Geom             orb.MultiPolygon
	Catchment        orb.MultiPolygon
	SourceRef        *string
	Aliases          []string
	UserID           *int64
}

// UpdateOrgUnitRequest is a partial update. Nil fields are left untouched.
type UpdateOrgUnitRequest struct {
	ID               int64
	Name             *string
	ParentID         *int64
	MakeRoot         bool
	OrgUnitTypeID    *int64
	ValidationStatus *types.ValidationStatus
	Location         *orb.Point
	ClearLocation    bool
	Altitude         *float64
	Geom             orb.MultiPolygon
	Catchment        orb.MultiPolygon
	SourceRef        *string
	Aliases          []string
	ForceRecalculate bool
	UserID           *int64
}

type OrgUnitService struct {
	store   ports.OrgUnitStore
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewOrgUnitService(store ports.OrgUnitStore, logger *zap.Logger, m *metrics.Metrics) *OrgUnitService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrgUnitService{store: store, logger: logger, metrics: m}
}

func (s *OrgUnitService) Get(ctx context.Context, id int64) (types.OrgUnit, error) {
	return s.store.GetOrgUnit(ctx, id)
}

func (s *OrgUnitService) List(ctx context.Context, q types.OrgUnitQuery) ([]types.OrgUnit, error) {
	if q.IsNone() {
		return nil, nil
	}
	return s.store.ListOrgUnits(ctx, q)
}

func (s *OrgUnitService) Count(ctx context.Context, q types.OrgUnitQuery) (int, error) {
	if q.IsNone() {
		return 0, nil
	}
	return s.store.CountOrgUnits(ctx, q)
}

func (s *OrgUnitService) ResolveSourceRef(ctx context.Context, versionID int64, sourceRef string) (int64, error) {
	id, err := s.store.ResolveSourceRef(ctx, versionID, sourceRef)
	switch {
	case errors.Is(err, orgunitpkg.ErrSourceRefInvalid):
		return 0, errors.Join(err, httperr.NewBadRequest("source_ref is invalid"))
	case errors.Is(err, orgunitpkg.ErrSourceRefNotFound):
		return 0, errors.Join(err, ports.ErrOrgUnitNotFound)
	}
	return id, err
}

func (s *OrgUnitService) Create(ctx context.Context, req CreateOrgUnitRequest) (SaveResult, error) {
	if req.ParentSourceRef != "" {
		if req.ParentID != nil {
			return SaveResult{}, httperr.NewBadRequest("parent_id and parent_source_ref are exclusive")
		}
		if req.VersionID == nil {
			return SaveResult{}, httperr.NewBadRequest("parent_source_ref requires version_id")
		}
		parentID, err := s.store.ResolveSourceRef(ctx, *req.VersionID, req.ParentSourceRef)
		switch {
		case errors.Is(err, orgunitpkg.ErrSourceRefInvalid):
			return SaveResult{}, errors.Join(err, httperr.NewBadRequest("parent_source_ref is invalid"))
		case errors.Is(err, orgunitpkg.ErrSourceRefNotFound):
			return SaveResult{}, errors.Join(err, ErrParentNotFound)
		case err != nil:
			return SaveResult{}, err
		}
		req.ParentID = &parentID
	}
	status := req.ValidationStatus
	if status == "" {
		status = types.ValidationStatusNew
	}
	unit := types.OrgUnit{
		Name:             req.Name,
		ParentID:         req.ParentID,
		OrgUnitTypeID:    req.OrgUnitTypeID,
		VersionID:        req.VersionID,
		ValidationStatus: status,
		Location:         req.Location,
		Altitude:         req.Altitude,
		Geom:             req.Geom,
		Catchment:        req.Catchment,
		SourceRef:        req.SourceRef,
		Aliases:          req.Aliases,
	}
	return s.Save(ctx, unit, SaveOptions{UserID: req.UserID})
}

func (s *OrgUnitService) Update(ctx context.Context, req UpdateOrgUnitRequest) (SaveResult, error) {
	if req.ID <= 0 {
		return SaveResult{}, httperr.NewBadRequest("id is required")
	}
	if req.MakeRoot && req.ParentID != nil {
		return SaveResult{}, httperr.NewBadRequest("parent_id and make_root are exclusive")
	}
	unit, err := s.store.GetOrgUnit(ctx, req.ID)
	if err != nil {
		return SaveResult{}, err
	}
	if req.Name != nil {
		unit.Name = *req.Name
	}
	switch {
	case req.MakeRoot:
		unit.ParentID = nil
	case req.ParentID != nil:
		unit.ParentID = req.ParentID
	}
	if req.OrgUnitTypeID != nil {
		unit.OrgUnitTypeID = req.OrgUnitTypeID
	}
	if req.ValidationStatus != nil {
		unit.ValidationStatus = *req.ValidationStatus
	}
	switch {
	case req.ClearLocation:
		unit.Location, unit.Altitude = nil, nil
	case req.Location != nil:
		unit.Location = req.Location
		unit.Altitude = req.Altitude
	}
	if req.Geom != nil {
		unit.Geom = req.Geom
	}
	if req.Catchment != nil {
		unit.Catchment = req.Catchment
	}
	if req.SourceRef != nil {
		unit.SourceRef = req.SourceRef
	}
	if req.Aliases != nil {
		unit.Aliases = req.Aliases
	}
	return s.Save(ctx, unit, SaveOptions{ForceRecalculate: req.ForceRecalculate, UserID: req.UserID})
}

// Save writes unit and, unless skipped, recalculates the paths of the unit and its subtree in the
// same transaction. A zero ID inserts. The subtree is row-locked before any path is computed.
func (s *OrgUnitService) Save(ctx context.Context, unit types.OrgUnit, opts SaveOptions) (SaveResult, error) {
	ctx, span := tracer.Start(ctx, "orgunit.save", trace.WithAttributes(
		attribute.Int64("org_unit.id", unit.ID),
		attribute.Bool("org_unit.force_recalculate", opts.ForceRecalculate),
	))
	defer span.End()

	unit = unit.Clone()
	unit.Name = strings.TrimSpace(unit.Name)
	unit.Location = orgunitpkg.NormalizeLocation(unit.Location)
	if unit.Location == nil {
		unit.Altitude = nil
	}
	if err := validateOrgUnit(unit); err != nil {
		return SaveResult{}, err
	}

	var result SaveResult
	err := s.store.InTx(ctx, func(tx ports.OrgUnitTx) error {
		var (
			subtree []types.OrgUnit
			before  *types.OrgUnit
		)
		creating := unit.ID == 0
		if !creating {
			locked, err := tx.LockSubtree(ctx, unit.ID)
			if err != nil {
				return err
			}
			if len(locked) == 0 {
				return ports.ErrOrgUnitNotFound
			}
			prev := locked[0]
			before = &prev
			if unit.ParentID != nil && containsUnit(locked, *unit.ParentID) {
				return ports.ErrParentCycle
			}
			subtree = locked
		}

		parent, err := loadParent(ctx, tx, unit)
		if err != nil {
			return err
		}

		if creating {
			unit.Path, unit.PathState = nil, types.PathStatePending
			inserted, err := tx.Insert(ctx, unit)
			if err != nil {
				return err
			}
			unit = inserted
			subtree = []types.OrgUnit{inserted}
		} else {
			unit.Path, unit.PathState = before.Path, before.PathState
			updated, err := tx.Update(ctx, unit)
			if err != nil {
				return err
			}
			unit = updated
			subtree[0] = updated
		}

		snapshots := make(map[int64]types.OrgUnit, len(subtree))
		for _, u := range subtree {
			snapshots[u.ID] = u
		}

		if !opts.SkipCalculatePath {
			calc := CalculatePaths(unit, parent, NewPathTree(subtree), opts.ForceRecalculate)
			if len(calc.Changed) > 0 {
				if err := tx.UpdatePaths(ctx, calc.Changed); err != nil {
					return err
				}
			}
			for _, changed := range calc.Changed {
				if changed.ID == unit.ID {
					unit.Path, unit.PathState = changed.Path, changed.PathState
				}
			}
			result.Changed = calc.Changed
			result.Deferred = calc.Deferred
		}

		changes, err := buildChanges(unit, before, result.Changed, snapshots, opts.UserID)
		if err != nil {
			return err
		}
		if err := tx.InsertChanges(ctx, changes); err != nil {
			return err
		}
		result.Unit = unit
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return SaveResult{}, err
	}

	s.metrics.ObservePathCalculation(len(result.Changed), result.Deferred)
	if result.Deferred {
		s.logger.Info("org unit path deferred",
			zap.Int64("org_unit_id", result.Unit.ID),
			zap.Int64p("parent_id", result.Unit.ParentID),
		)
	}
	span.SetAttributes(
		attribute.Int64("org_unit.id", result.Unit.ID),
		attribute.Int("org_unit.paths_changed", len(result.Changed)),
		attribute.Bool("org_unit.path_deferred", result.Deferred),
	)
	return result, nil
}

func validateOrgUnit(unit types.OrgUnit) error {
	if unit.Name == "" {
		return httperr.NewBadRequest("name is required")
	}
	if len([]rune(unit.Name)) > maxNameLen {
		return httperr.NewBadRequest("name is too long")
	}
	if !unit.ValidationStatus.Valid() {
		return httperr.NewBadRequest("validation_status is invalid")
	}
	if unit.ParentID != nil && unit.ID != 0 && *unit.ParentID == unit.ID {
		return ports.ErrParentCycle
	}
	if unit.SourceRef != nil {
		ref, err := orgunitpkg.NormalizeSourceRef(*unit.SourceRef)
		if err != nil {
			return httperr.NewBadRequest("source_ref is invalid")
		}
		*unit.SourceRef = ref
	}
	return nil
}

// loadParent reads the parent under a share lock and checks it can hold unit.
func loadParent(ctx context.Context, tx ports.OrgUnitTx, unit types.OrgUnit) (*types.OrgUnit, error) {
	if unit.ParentID == nil {
		return nil, nil
	}
	parent, err := tx.Get(ctx, *unit.ParentID)
	if err != nil {
		if errors.Is(err, ports.ErrOrgUnitNotFound) {
			return nil, ErrParentNotFound
		}
		return nil, err
	}
	if !types.SameInt64(parent.VersionID, unit.VersionID) {
		return nil, ports.ErrParentVersionMismatch
	}
	if unit.ID != 0 && parent.Path.Contains(unit.ID) {
		return nil, ports.ErrParentCycle
	}
	return &parent, nil
}

func containsUnit(units []types.OrgUnit, id int64) bool {
	for _, u := range units {
		if u.ID == id {
			return true
		}
	}
	return false
}

func buildChanges(unit types.OrgUnit, before *types.OrgUnit, changed []types.OrgUnit, snapshots map[int64]types.OrgUnit, userID *int64) ([]types.OrgUnitChange, error) {
	now := nowUTC()
	id, err := newChangeID()
	if err != nil {
		return nil, err
	}
	own := types.OrgUnitChange{
		ID:        id,
		OrgUnitID: unit.ID,
		UserID:    userID,
		Kind:      types.OrgUnitChangeCreate,
		New:       types.SnapshotOf(unit),
		CreatedAt: now,
	}
	if before != nil {
		old := types.SnapshotOf(*before)
		own.Kind = types.OrgUnitChangeUpdate
		own.Old = &old
	}
	out := []types.OrgUnitChange{own}
	for _, u := range changed {
		if u.ID == unit.ID {
			continue
		}
		id, err := newChangeID()
		if err != nil {
			return nil, err
		}
		old := types.SnapshotOf(snapshots[u.ID])
		out = append(out, types.OrgUnitChange{
			ID:        id,
			OrgUnitID: u.ID,
			UserID:    userID,
			Kind:      types.OrgUnitChangePath,
			Old:       &old,
			New:       types.SnapshotOf(u),
			CreatedAt: now,
		})
	}
	return out, nil
}
