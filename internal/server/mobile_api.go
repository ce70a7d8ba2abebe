package server

import (
	"net/http"
	"strings"

	"github.com/blsq/iaso/internal/routing"
	"github.com/blsq/iaso/modules/orgunit/domain/types"
)

type mobileOrgUnitsResponse struct {
	OrgUnits []mobileOrgUnitJSON `json:"orgUnits"`
}

// handleMobileOrgUnits serves the org units a mobile application downloads. Projects that need
// authentication refuse anonymous callers. Units come parents first.
func (h *api) handleMobileOrgUnits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID := strings.TrimSpace(r.URL.Query().Get("app_id"))
	if appID == "" {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_request", "app_id is required")
		return
	}
	lite, err := queryBool(r, "lite")
	if err != nil {
		writeAPIError(w, r, h.logger, err, "mobile_orgunits_failed")
		return
	}

	user := currentUser(ctx)
	project, ok, err := h.filter.ProjectForUserAndAppID(ctx, user, appID)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "mobile_orgunits_failed")
		return
	}
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusNotFound, "project_not_found", "project not found")
		return
	}
	if project.NeedsAuthentication && !user.IsAuthenticated() {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnauthorized, "authentication_required", "authentication required")
		return
	}

	q, err := h.filter.FilterForUserAndAppID(ctx, user, appID)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "mobile_orgunits_failed")
		return
	}
	q = q.OrderBy(types.OrderByPath, types.OrderByID)
	if r.URL.Query().Has("limit") || r.URL.Query().Has("offset") {
		limit, offset, err := pageParams(r)
		if err != nil {
			writeAPIError(w, r, h.logger, err, "mobile_orgunits_failed")
			return
		}
		q = q.WithLimit(limit).WithOffset(offset)
	}

	units, err := h.units.List(ctx, q)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "mobile_orgunits_failed")
		return
	}

	if lite {
		out := make([]liteOrgUnitJSON, 0, len(units))
		for _, u := range units {
			out = append(out, serializeLiteOrgUnit(u))
		}
		routing.WriteJSON(w, http.StatusOK, out)
		return
	}
	out := make([]mobileOrgUnitJSON, 0, len(units))
	for _, u := range units {
		out = append(out, serializeMobileOrgUnit(u))
	}
	routing.WriteJSON(w, http.StatusOK, mobileOrgUnitsResponse{OrgUnits: out})
}
