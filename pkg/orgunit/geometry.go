package orgunit

import (
	"encoding/json"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
)

// IsEmptyPoint reports a point decoded from a PostGIS `POINT EMPTY`, which WKB encodes as NaN coordinates.
func IsEmptyPoint(p *orb.Point) bool {
	if p == nil {
		return false
	}
	return math.IsNaN(p.X()) || math.IsNaN(p.Y())
}

// NormalizeLocation drops a present-but-empty point.
func NormalizeLocation(p *orb.Point) *orb.Point {
	if p == nil || IsEmptyPoint(p) {
		return nil
	}
	return p
}

func PointWKB(p *orb.Point) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return wkb.Marshal(*p)
}

func MultiPolygonWKB(mp orb.MultiPolygon) ([]byte, error) {
	if len(mp) == 0 {
		return nil, nil
	}
	return wkb.Marshal(mp)
}

func PointFromWKB(b []byte) (*orb.Point, error) {
	if len(b) == 0 {
		return nil, nil
	}
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, err
	}
	p, ok := g.(orb.Point)
	if !ok {
		return nil, ErrGeometryType
	}
	return &p, nil
}

// MultiPolygonFromWKB accepts polygons as well and promotes them to a single-member multipolygon.
func MultiPolygonFromWKB(b []byte) (orb.MultiPolygon, error) {
	if len(b) == 0 {
		return nil, nil
	}
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, err
	}
	return asMultiPolygon(g)
}

func MultiPolygonFromGeoJSON(raw json.RawMessage) (orb.MultiPolygon, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, err
	}
	return asMultiPolygon(g.Geometry())
}

func GeoJSON(mp orb.MultiPolygon) (json.RawMessage, error) {
	if len(mp) == 0 {
		return nil, nil
	}
	return json.Marshal(geojson.NewGeometry(mp))
}

func asMultiPolygon(g orb.Geometry) (orb.MultiPolygon, error) {
	switch v := g.(type) {
	case orb.MultiPolygon:
		return v, nil
	case orb.Polygon:
		return orb.MultiPolygon{v}, nil
	default:
		return nil, ErrGeometryType
	}
}
