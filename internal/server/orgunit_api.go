package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/blsq/iaso/internal/routing"
	"github.com/blsq/iaso/modules/orgunit/domain/ports"
	"github.com/blsq/iaso/modules/orgunit/domain/types"
	"github.com/blsq/iaso/modules/orgunit/services"
	"github.com/blsq/iaso/pkg/httperr"
	orgunitpkg "github.com/blsq/iaso/pkg/orgunit"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// maxFilterScan caps how many units a filter expression is evaluated against in one request.
var maxFilterScan = maxPageSize * 20

type orgUnitListResponse struct {
	Count   int           `json:"count"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
	Results []orgUnitJSON `json:"results"`
}

type orgUnitCreateRequest struct {
	Name             string          `json:"name" validate:"required,max=255"`
	ParentID         *int64          `json:"parent_id" validate:"omitempty,gt=0"`
	ParentSourceRef  string          `json:"parent_source_ref" validate:"omitempty,max=255"`
	OrgUnitTypeID    *int64          `json:"org_unit_type_id" validate:"omitempty,gt=0"`
	VersionID        *int64          `json:"version_id" validate:"omitempty,gt=0"`
	ValidationStatus string          `json:"validation_status" validate:"omitempty,oneof=NEW VALID REJECTED"`
	Latitude         *float64        `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude        *float64        `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Altitude         *float64        `json:"altitude"`
	GeoJSON          json.RawMessage `json:"geo_json"`
	Catchment        json.RawMessage `json:"catchment"`
	SourceRef        *string         `json:"source_ref" validate:"omitempty,max=255"`
	Aliases          []string        `json:"aliases" validate:"omitempty,dive,max=255"`
}

type orgUnitPatchRequest struct {
	Name             *string         `json:"name" validate:"omitempty,max=255"`
	ParentID         *int64          `json:"parent_id" validate:"omitempty,gt=0"`
	MakeRoot         bool            `json:"make_root"`
	OrgUnitTypeID    *int64          `json:"org_unit_type_id" validate:"omitempty,gt=0"`
	ValidationStatus *string         `json:"validation_status" validate:"omitempty,oneof=NEW VALID REJECTED"`
	Latitude         *float64        `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude        *float64        `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Altitude         *float64        `json:"altitude"`
	ClearLocation    bool            `json:"clear_location"`
	GeoJSON          json.RawMessage `json:"geo_json"`
	Catchment        json.RawMessage `json:"catchment"`
	SourceRef        *string         `json:"source_ref" validate:"omitempty,max=255"`
	Aliases          []string        `json:"aliases" validate:"omitempty,dive,max=255"`
	ForceRecalculate bool            `json:"force_recalculate"`
}

func pageParams(r *http.Request) (limit int, offset int, err error) {
	limit = defaultPageSize
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return 0, 0, httperr.NewBadRequest("limit must be a positive integer")
		}
		limit = min(limit, maxPageSize)
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, httperr.NewBadRequest("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

func locationFrom(lat, lon *float64) (*orb.Point, error) {
	if lat == nil && lon == nil {
		return nil, nil
	}
	if lat == nil || lon == nil {
		return nil, httperr.NewBadRequest("latitude and longitude must be set together")
	}
	return &orb.Point{*lon, *lat}, nil
}

func geometryFrom(field string, raw json.RawMessage) (orb.MultiPolygon, error) {
	mp, err := orgunitpkg.MultiPolygonFromGeoJSON(raw)
	if err != nil {
		return nil, httperr.NewBadRequest(field + " must be a GeoJSON Polygon or MultiPolygon")
	}
	return mp, nil
}

// baseQuery is the access scope of the request principal, narrowed by the app_id parameter.
func (h *api) baseQuery(r *http.Request) (types.OrgUnitQuery, error) {
	return h.filter.FilterForUserAndAppID(r.Context(), currentUser(r.Context()), r.URL.Query().Get("app_id"))
}

// visibleUnit loads id when it belongs to base; units outside the scope are reported as missing.
func (h *api) visibleUnit(ctx context.Context, base types.OrgUnitQuery, id int64) (types.OrgUnit, error) {
	units, err := h.units.List(ctx, base.Where(types.IDIn{IDs: []int64{id}}).WithLimit(1))
	if err != nil {
		return types.OrgUnit{}, err
	}
	if len(units) == 0 {
		return types.OrgUnit{}, ports.ErrOrgUnitNotFound
	}
	return units[0], nil
}

func (h *api) typeNames(ctx context.Context, units []types.OrgUnit) (map[int64]string, error) {
	names := make(map[int64]string)
	for _, u := range units {
		if u.OrgUnitTypeID == nil {
			continue
		}
		id := *u.OrgUnitTypeID
		if _, ok := names[id]; ok {
			continue
		}
		t, err := h.types.Get(ctx, id)
		switch {
		case errors.Is(err, ports.ErrOrgUnitTypeNotFound):
			names[id] = ""
		case err != nil:
			return nil, err
		default:
			names[id] = t.Name
		}
	}
	return names, nil
}

func (h *api) writeUnits(w http.ResponseWriter, r *http.Request, units []types.OrgUnit, count, limit, offset int) {
	names, err := h.typeNames(r.Context(), units)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_type_lookup_failed")
		return
	}
	results := make([]orgUnitJSON, 0, len(units))
	for _, u := range units {
		out, err := serializeOrgUnit(u, typeName(names, u), false)
		if err != nil {
			writeAPIError(w, r, h.logger, err, "orgunit_serialize_failed")
			return
		}
		results = append(results, out)
	}
	routing.WriteJSON(w, http.StatusOK, orgUnitListResponse{Count: count, Limit: limit, Offset: offset, Results: results})
}

func (h *api) writeUnit(w http.ResponseWriter, r *http.Request, status int, u types.OrgUnit) {
	names, err := h.typeNames(r.Context(), []types.OrgUnit{u})
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_type_lookup_failed")
		return
	}
	out, err := serializeOrgUnit(u, typeName(names, u), true)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_serialize_failed")
		return
	}
	routing.WriteJSON(w, status, out)
}

func typeName(names map[int64]string, u types.OrgUnit) string {
	if u.OrgUnitTypeID == nil {
		return ""
	}
	return names[*u.OrgUnitTypeID]
}

func listPredicates(r *http.Request) ([]types.Predicate, error) {
	var preds []types.Predicate
	q := r.URL.Query()

	parentID, err := queryInt64(r, "parent_id")
	if err != nil {
		return nil, err
	}
	if parentID != nil {
		preds = append(preds, types.ParentIs{ID: *parentID})
	}

	roots, err := queryBool(r, "roots")
	if err != nil {
		return nil, err
	}
	if roots {
		if parentID != nil {
			return nil, httperr.NewBadRequest("roots and parent_id are exclusive")
		}
		preds = append(preds, types.RootsOnly{})
	}

	if raw := strings.TrimSpace(q.Get("validation_status")); raw != "" {
		var statuses []types.ValidationStatus
		for part := range strings.SplitSeq(raw, ",") {
			s := types.ValidationStatus(strings.ToUpper(strings.TrimSpace(part)))
			if !s.Valid() {
				return nil, httperr.NewBadRequest("validation_status is invalid")
			}
			statuses = append(statuses, s)
		}
		preds = append(preds, types.StatusIn{Statuses: statuses})
	}

	typeIDs, err := queryInt64List(r, "org_unit_type_id")
	if err != nil {
		return nil, err
	}
	if len(typeIDs) > 0 {
		preds = append(preds, types.TypeIn{IDs: typeIDs})
	}

	if search := strings.TrimSpace(q.Get("search")); search != "" {
		preds = append(preds, types.NameContains{Text: search})
	}
	if ref := strings.TrimSpace(q.Get("source_ref")); ref != "" {
		preds = append(preds, types.SourceRefIn{Refs: []string{ref}})
	}
	return preds, nil
}

func (h *api) handleListOrgUnits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	base, err := h.baseQuery(r)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_access_failed")
		return
	}
	preds, err := listPredicates(r)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_list_failed")
		return
	}
	limit, offset, err := pageParams(r)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_list_failed")
		return
	}
	var filter *services.SearchFilter
	if expr := r.URL.Query().Get("filter"); strings.TrimSpace(expr) != "" {
		filter, err = services.CompileSearchFilter(expr)
		if err != nil {
			writeAPIError(w, r, h.logger, err, "orgunit_list_failed")
			return
		}
	}

	q := base.Where(preds...).OrderBy(types.OrderByName, types.OrderByID)

	if filter == nil {
		count, err := h.units.Count(ctx, q)
		if err != nil {
			writeAPIError(w, r, h.logger, err, "orgunit_list_failed")
			return
		}
		units, err := h.units.List(ctx, q.WithLimit(limit).WithOffset(offset))
		if err != nil {
			writeAPIError(w, r, h.logger, err, "orgunit_list_failed")
			return
		}
		h.writeUnits(w, r, units, count, limit, offset)
		return
	}

	// expressions run after the store query, so paging happens here
	units, err := h.units.List(ctx, q.WithLimit(maxFilterScan+1))
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_list_failed")
		return
	}
	if len(units) > maxFilterScan {
		err := httperr.BadRequestf("filter applies to at most %d org units; narrow the query with parent_id, org_unit_type_id or similar", maxFilterScan)
		writeAPIError(w, r, h.logger, err, "orgunit_list_failed")
		return
	}
	units, err = filter.Apply(units)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_list_failed")
		return
	}
	count := len(units)
	units = units[min(offset, count):min(offset+limit, count)]
	h.writeUnits(w, r, units, count, limit, offset)
}

func (h *api) handleGetOrgUnit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_get_failed")
		return
	}
	base, err := h.baseQuery(r)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_access_failed")
		return
	}
	unit, err := h.visibleUnit(r.Context(), base, id)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_get_failed")
		return
	}
	h.writeUnit(w, r, http.StatusOK, unit)
}

func (h *api) handleChildren(w http.ResponseWriter, r *http.Request) {
	h.handleSubtree(w, r, services.Children)
}

func (h *api) handleDescendants(w http.ResponseWriter, r *http.Request) {
	h.handleSubtree(w, r, services.Descendants)
}

func (h *api) handleSubtree(w http.ResponseWriter, r *http.Request, narrow func(types.OrgUnitQuery, types.OrgUnit) (types.OrgUnitQuery, error)) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_subtree_failed")
		return
	}
	limit, offset, err := pageParams(r)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_subtree_failed")
		return
	}
	base, err := h.baseQuery(r)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_access_failed")
		return
	}
	unit, err := h.visibleUnit(ctx, base, id)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_subtree_failed")
		return
	}
	q, err := narrow(base, unit)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_subtree_failed")
		return
	}
	q = q.OrderBy(types.OrderByPath, types.OrderByID)

	count, err := h.units.Count(ctx, q)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_subtree_failed")
		return
	}
	units, err := h.units.List(ctx, q.WithLimit(limit).WithOffset(offset))
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_subtree_failed")
		return
	}
	h.writeUnits(w, r, units, count, limit, offset)
}

// hasUnitScope reports a principal restricted to the hierarchy of its assigned org units.
func hasUnitScope(user types.User) bool {
	return user.IsAuthenticated() && !user.IsSuperuser && len(user.OrgUnitIDs) > 0
}

func (h *api) checkVersion(ctx context.Context, user types.User, versionID *int64) error {
	if versionID == nil || !user.IsAuthenticated() || user.IsSuperuser {
		return nil
	}
	versions, err := h.access.ListAccountVersionIDs(ctx, user.AccountID)
	if err != nil {
		return err
	}
	if !slices.Contains(versions, *versionID) {
		return httperr.NewBadRequest("version_id is not available to this account")
	}
	return nil
}

// resolveParentRef turns parent_source_ref into a parent id so that scope checks see the real parent.
func (h *api) resolveParentRef(ctx context.Context, parentID *int64, versionID *int64, ref string) (*int64, error) {
	if strings.TrimSpace(ref) == "" {
		return parentID, nil
	}
	if parentID != nil {
		return nil, httperr.NewBadRequest("parent_id and parent_source_ref are exclusive")
	}
	if versionID == nil {
		return nil, httperr.NewBadRequest("parent_source_ref requires version_id")
	}
	id, err := h.units.ResolveSourceRef(ctx, *versionID, ref)
	if err != nil {
		if errors.Is(err, ports.ErrOrgUnitNotFound) {
			return nil, services.ErrParentNotFound
		}
		return nil, err
	}
	return &id, nil
}

// checkWritable rejects a parent outside the principal's scope. A scoped principal may not
// place a unit at the root, where its hierarchy cannot reach it.
func (h *api) checkWritable(ctx context.Context, base types.OrgUnitQuery, user types.User, parentID *int64) error {
	if parentID == nil && hasUnitScope(user) {
		return errOutsideScope
	}
	if parentID != nil {
		if _, err := h.visibleUnit(ctx, base, *parentID); err != nil {
			if errors.Is(err, ports.ErrOrgUnitNotFound) {
				return services.ErrParentNotFound
			}
			return err
		}
	}
	return nil
}

func (h *api) handleCreateOrgUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req orgUnitCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_create_failed")
		return
	}
	location, err := locationFrom(req.Latitude, req.Longitude)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_create_failed")
		return
	}
	geom, err := geometryFrom("geo_json", req.GeoJSON)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_create_failed")
		return
	}
	catchment, err := geometryFrom("catchment", req.Catchment)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_create_failed")
		return
	}

	user := currentUser(ctx)
	versionID := req.VersionID
	if versionID == nil && user.IsAuthenticated() {
		account, err := h.access.GetAccount(ctx, user.AccountID)
		if err != nil {
			writeAPIError(w, r, h.logger, err, "orgunit_create_failed")
			return
		}
		versionID = account.DefaultVersionID
	}

	base, err := h.baseQuery(r)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_access_failed")
		return
	}
	if err := h.checkVersion(ctx, user, versionID); err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_create_failed")
		return
	}
	parentID, err := h.resolveParentRef(ctx, req.ParentID, versionID, req.ParentSourceRef)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_create_failed")
		return
	}
	if err := h.checkWritable(ctx, base, user, parentID); err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_create_failed")
		return
	}

	var userID *int64
	if user.IsAuthenticated() {
		userID = &user.ID
	}
	res, err := h.units.Create(ctx, services.CreateOrgUnitRequest{
		Name:             req.Name,
		ParentID:         parentID,
		OrgUnitTypeID:    req.OrgUnitTypeID,
		VersionID:        versionID,
		ValidationStatus: types.ValidationStatus(req.ValidationStatus),
		Location:         location,
		Altitude:         req.Altitude,
		Geom:             geom,
		Catchment:        catchment,
		SourceRef:        req.SourceRef,
		Aliases:          req.Aliases,
		UserID:           userID,
	})
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_create_failed")
		return
	}
	h.writeUnit(w, r, http.StatusCreated, res.Unit)
}

func (h *api) handlePatchOrgUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_update_failed")
		return
	}
	var req orgUnitPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_update_failed")
		return
	}
	location, err := locationFrom(req.Latitude, req.Longitude)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_update_failed")
		return
	}
	if req.ClearLocation && location != nil {
		writeAPIError(w, r, h.logger, httperr.NewBadRequest("clear_location and coordinates are exclusive"), "orgunit_update_failed")
		return
	}
	geom, err := geometryFrom("geo_json", req.GeoJSON)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_update_failed")
		return
	}
	catchment, err := geometryFrom("catchment", req.Catchment)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_update_failed")
		return
	}

	user := currentUser(ctx)
	base, err := h.baseQuery(r)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_access_failed")
		return
	}
	if _, err := h.visibleUnit(ctx, base, id); err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_update_failed")
		return
	}
	if req.MakeRoot && hasUnitScope(user) {
		writeAPIError(w, r, h.logger, errOutsideScope, "orgunit_update_failed")
		return
	}
	if req.ParentID != nil {
		if err := h.checkWritable(ctx, base, user, req.ParentID); err != nil {
			writeAPIError(w, r, h.logger, err, "orgunit_update_failed")
			return
		}
	}

	var status *types.ValidationStatus
	if req.ValidationStatus != nil {
		s := types.ValidationStatus(*req.ValidationStatus)
		status = &s
	}
	var userID *int64
	if user.IsAuthenticated() {
		userID = &user.ID
	}
	res, err := h.units.Update(ctx, services.UpdateOrgUnitRequest{
		ID:               id,
		Name:             req.Name,
		ParentID:         req.ParentID,
		MakeRoot:         req.MakeRoot,
		OrgUnitTypeID:    req.OrgUnitTypeID,
		ValidationStatus: status,
		Location:         location,
		ClearLocation:    req.ClearLocation,
		Altitude:         req.Altitude,
		Geom:             geom,
		Catchment:        catchment,
		SourceRef:        req.SourceRef,
		Aliases:          req.Aliases,
		ForceRecalculate: req.ForceRecalculate,
		UserID:           userID,
	})
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_update_failed")
		return
	}
	h.writeUnit(w, r, http.StatusOK, res.Unit)
}
