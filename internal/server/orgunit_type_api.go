package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/blsq/iaso/internal/routing"
	"github.com/blsq/iaso/modules/orgunit/domain/ports"
	"github.com/blsq/iaso/modules/orgunit/domain/types"
)

type orgUnitTypeJSON struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	ShortName      string    `json:"short_name"`
	Category       string    `json:"category,omitempty"`
	Depth          *int      `json:"depth"`
	SubUnitTypeIDs []int64   `json:"sub_unit_type_ids"`
	ProjectIDs     []int64   `json:"project_ids"`
	AccountID      *int64    `json:"account_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type orgUnitTypeResolveRequest struct {
	Name  string `json:"name" validate:"required,max=255"`
	Depth *int   `json:"depth" validate:"omitempty,gte=0"`
	AppID string `json:"app_id" validate:"omitempty,max=255"`
}

func serializeOrgUnitType(t types.OrgUnitType) orgUnitTypeJSON {
	out := orgUnitTypeJSON{
		ID:             t.ID,
		Name:           t.Name,
		ShortName:      t.ShortName,
		Category:       string(t.Category),
		Depth:          t.Depth,
		SubUnitTypeIDs: t.SubUnitTypeIDs,
		ProjectIDs:     t.ProjectIDs,
		AccountID:      t.AccountID,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
	if out.SubUnitTypeIDs == nil {
		out.SubUnitTypeIDs = []int64{}
	}
	if out.ProjectIDs == nil {
		out.ProjectIDs = []int64{}
	}
	return out
}

// handleListOrgUnitTypes lists the types of the app_id project, or of the caller's account.
func (h *api) handleListOrgUnitTypes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := currentUser(ctx)
	filter := types.OrgUnitTypeFilter{}

	if appID := strings.TrimSpace(r.URL.Query().Get("app_id")); appID != "" {
		project, ok, err := h.filter.ProjectForUserAndAppID(ctx, user, appID)
		if err != nil {
			writeAPIError(w, r, h.logger, err, "orgunit_types_failed")
			return
		}
		if !ok {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusNotFound, "project_not_found", "project not found")
			return
		}
		filter.ProjectIDs = []int64{project.ID}
	} else if user.IsAuthenticated() {
		accountID := user.AccountID
		filter.AccountID = &accountID
	} else {
		routing.WriteJSON(w, http.StatusOK, map[string]any{"results": []orgUnitTypeJSON{}})
		return
	}
	if name := strings.TrimSpace(r.URL.Query().Get("name")); name != "" {
		filter.Name = &name
	}

	found, err := h.types.List(ctx, filter)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_types_failed")
		return
	}
	results := make([]orgUnitTypeJSON, 0, len(found))
	for _, t := range found {
		results = append(results, serializeOrgUnitType(t))
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *api) handleResolveOrgUnitType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req orgUnitTypeResolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_type_resolve_failed")
		return
	}
	user := currentUser(ctx)
	if !user.IsAuthenticated() {
		writeAPIError(w, r, h.logger, ports.ErrProfileNotFound, "orgunit_type_resolve_failed")
		return
	}
	account, err := h.access.GetAccount(ctx, user.AccountID)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_type_resolve_failed")
		return
	}

	var preferred *types.Project
	if appID := strings.TrimSpace(req.AppID); appID != "" {
		project, ok, err := h.filter.ProjectForUserAndAppID(ctx, user, appID)
		if err != nil {
			writeAPIError(w, r, h.logger, err, "orgunit_type_resolve_failed")
			return
		}
		if !ok {
			writeAPIError(w, r, h.logger, ports.ErrProjectNotFound, "orgunit_type_resolve_failed")
			return
		}
		preferred = &project
	}

	t, err := h.types.GetOrCreateOrgUnitType(ctx, req.Name, req.Depth, account, preferred)
	if err != nil {
		writeAPIError(w, r, h.logger, err, "orgunit_type_resolve_failed")
		return
	}
	routing.WriteJSON(w, http.StatusOK, serializeOrgUnitType(t))
}
