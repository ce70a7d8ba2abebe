package server

import (
	"encoding/json"
	"time"

	"github.com/blsq/iaso/modules/orgunit/domain/types"
	orgunitpkg "github.com/blsq/iaso/pkg/orgunit"
)

type orgUnitJSON struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	ParentID         *int64          `json:"parent_id"`
	OrgUnitTypeID    *int64          `json:"org_unit_type_id"`
	OrgUnitTypeName  string          `json:"org_unit_type_name,omitempty"`
	Path             []int64         `json:"path"`
	PathState        string          `json:"path_state"`
	VersionID        *int64          `json:"version_id"`
	ValidationStatus string          `json:"validation_status"`
	SourceRef        *string         `json:"source_ref"`
	Aliases          []string        `json:"aliases"`
	Latitude         *float64        `json:"latitude"`
	Longitude        *float64        `json:"longitude"`
	Altitude         *float64        `json:"altitude"`
	HasGeoJSON       bool            `json:"has_geo_json"`
	GeoJSON          json.RawMessage `json:"geo_json,omitempty"`
	Catchment        json.RawMessage `json:"catchment,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type mobileOrgUnitJSON struct {
	Name             string   `json:"name"`
	ID               int64    `json:"id"`
	ParentID         *int64   `json:"parent_id"`
	OrgUnitTypeID    *int64   `json:"org_unit_type_id"`
	ValidationStatus string   `json:"validation_status"`
	CreatedAt        int64    `json:"created_at"`
	UpdatedAt        int64    `json:"updated_at"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	Altitude         *float64 `json:"altitude"`
}

type liteOrgUnitJSON struct {
	Name          string   `json:"n"`
	ID            int64    `json:"id"`
	ParentID      *int64   `json:"p"`
	OrgUnitTypeID *int64   `json:"out"`
	CreatedAt     int64    `json:"c_a"`
	Latitude      *float64 `json:"lat"`
	Longitude     *float64 `json:"lon"`
	Altitude      *float64 `json:"alt"`
}

// coordinates splits the location into latitude and longitude. Empty points count as absent.
func coordinates(u types.OrgUnit) (lat *float64, lon *float64, alt *float64) {
	p := orgunitpkg.NormalizeLocation(u.Location)
	if p == nil {
		return nil, nil, nil
	}
	y, x := p.Lat(), p.Lon()
	return &y, &x, u.Altitude
}

func serializeOrgUnit(u types.OrgUnit, typeName string, withGeometry bool) (orgUnitJSON, error) {
	lat, lon, alt := coordinates(u)
	out := orgUnitJSON{
		ID:               u.ID,
		Name:             u.Name,
		ParentID:         u.ParentID,
		OrgUnitTypeID:    u.OrgUnitTypeID,
		OrgUnitTypeName:  typeName,
		PathState:        string(u.PathState),
		VersionID:        u.VersionID,
		ValidationStatus: string(u.ValidationStatus),
		SourceRef:        u.SourceRef,
		Aliases:          u.Aliases,
		Latitude:         lat,
		Longitude:        lon,
		Altitude:         alt,
		HasGeoJSON:       len(u.Geom) > 0,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
	if !u.IsPending() {
		out.Path = u.Path.Int64s()
	}
	if out.PathState == "" {
		out.PathState = string(types.PathStateSeeded)
		if u.IsPending() {
			out.PathState = string(types.PathStatePending)
		}
	}
	if out.Aliases == nil {
		out.Aliases = []string{}
	}
	if withGeometry {
		geom, err := orgunitpkg.GeoJSON(u.Geom)
		if err != nil {
			return orgUnitJSON{}, err
		}
		catchment, err := orgunitpkg.GeoJSON(u.Catchment)
		if err != nil {
			return orgUnitJSON{}, err
		}
		out.GeoJSON, out.Catchment = geom, catchment
	}
	return out, nil
}

func serializeMobileOrgUnit(u types.OrgUnit) mobileOrgUnitJSON {
	lat, lon, alt := coordinates(u)
	return mobileOrgUnitJSON{
		Name:             u.Name,
		ID:               u.ID,
		ParentID:         u.ParentID,
		OrgUnitTypeID:    u.OrgUnitTypeID,
		ValidationStatus: string(u.ValidationStatus),
		CreatedAt:        unixSeconds(u.CreatedAt),
		UpdatedAt:        unixSeconds(u.UpdatedAt),
		Latitude:         lat,
		Longitude:        lon,
		Altitude:         alt,
	}
}

func serializeLiteOrgUnit(u types.OrgUnit) liteOrgUnitJSON {
	lat, lon, alt := coordinates(u)
	return liteOrgUnitJSON{
		Name:          u.Name,
		ID:            u.ID,
		ParentID:      u.ParentID,
		OrgUnitTypeID: u.OrgUnitTypeID,
		CreatedAt:     unixSeconds(u.CreatedAt),
		Latitude:      lat,
		Longitude:     lon,
		Altitude:      alt,
	}
}

func unixSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
