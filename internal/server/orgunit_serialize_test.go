package server

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/blsq/iaso/modules/orgunit/domain/types"
	orgunitpkg "github.com/blsq/iaso/pkg/orgunit"
)

func TestSerializeOrgUnit_Pending(t *testing.T) {
	parent := int64(4)
	out, err := serializeOrgUnit(types.OrgUnit{ID: 5, Name: "Imported", ParentID: &parent, PathState: types.PathStatePending}, "", true)
	if err != nil {
		t.Fatal(err)
	}
	if out.Path != nil || out.PathState != string(types.PathStatePending) {
		t.Fatalf("path=%v state=%q", out.Path, out.PathState)
	}
	if out.Aliases == nil || out.HasGeoJSON || out.GeoJSON != nil {
		t.Fatalf("unexpected defaults: %+v", out)
	}
}

func TestSerializeOrgUnit_SeededWithGeometry(t *testing.T) {
	alt := 40.0
	u := types.OrgUnit{
		ID:        2,
		Name:      "Bo",
		Path:      orgunitpkg.Path{1, 2},
		PathState: types.PathStateSeeded,
		Location:  &orb.Point{-11.7, 7.9},
		Altitude:  &alt,
		Geom:      orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}},
	}
	out, err := serializeOrgUnit(u, "District", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Path) != 2 || out.Path[1] != 2 {
		t.Fatalf("path=%v", out.Path)
	}
	if out.Latitude == nil || *out.Latitude != 7.9 || out.Longitude == nil || *out.Longitude != -11.7 {
		t.Fatalf("lat=%v lon=%v", out.Latitude, out.Longitude)
	}
	if !out.HasGeoJSON || len(out.GeoJSON) == 0 || out.Catchment != nil {
		t.Fatalf("geometry: %+v", out)
	}
	if out.OrgUnitTypeName != "District" {
		t.Fatalf("type name=%q", out.OrgUnitTypeName)
	}

	brief, err := serializeOrgUnit(u, "", false)
	if err != nil {
		t.Fatal(err)
	}
	if !brief.HasGeoJSON || brief.GeoJSON != nil {
		t.Fatalf("expected geometry flag without body: %+v", brief)
	}
}

func TestSerializeMobileOrgUnit_EmptyPoint(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	out := serializeMobileOrgUnit(types.OrgUnit{ID: 1, Name: "A", Location: &orb.Point{math.NaN(), math.NaN()}, CreatedAt: created})
	if out.Latitude != nil || out.Longitude != nil {
		t.Fatalf("empty point should be absent: %+v", out)
	}
	if out.CreatedAt != created.Unix() || out.UpdatedAt != 0 {
		t.Fatalf("timestamps: %+v", out)
	}
}

func TestSerializeLiteOrgUnit_Keys(t *testing.T) {
	b, err := json.Marshal(serializeLiteOrgUnit(types.OrgUnit{ID: 3, Name: "Badjia"}))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"n", "id", "p", "out", "c_a", "lat", "lon", "alt"} {
		if _, ok := m[k]; !ok {
			t.Fatalf("missing key %q in %s", k, b)
		}
	}
	if len(m) != 8 {
		t.Fatalf("unexpected keys: %s", b)
	}
}
