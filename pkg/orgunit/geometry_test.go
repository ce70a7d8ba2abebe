package orgunit

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestNormalizeLocation(t *testing.T) {
	if NormalizeLocation(nil) != nil {
		t.Fatal("nil stays nil")
	}
	empty := orb.Point{math.NaN(), math.NaN()}
	if NormalizeLocation(&empty) != nil {
		t.Fatal("empty point must be dropped")
	}
	p := orb.Point{1.5, -3.25}
	if got := NormalizeLocation(&p); got == nil || *got != p {
		t.Fatalf("got=%v", got)
	}
}

func TestPointWKBRoundTrip(t *testing.T) {
	p := orb.Point{4.35, 50.85}
	b, err := PointWKB(&p)
	if err != nil {
		t.Fatal(err)
	}
	got, err := PointFromWKB(b)
	if err != nil || got == nil || *got != p {
		t.Fatalf("got=%v err=%v", got, err)
	}

	if b, err := PointWKB(nil); err != nil || b != nil {
		t.Fatalf("b=%v err=%v", b, err)
	}
	if got, err := PointFromWKB(nil); err != nil || got != nil {
		t.Fatalf("got=%v err=%v", got, err)
	}
}

func TestMultiPolygonPromotesPolygon(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	raw, err := GeoJSON(orb.MultiPolygon{poly})
	if err != nil {
		t.Fatal(err)
	}
	mp, err := MultiPolygonFromGeoJSON(raw)
	if err != nil || len(mp) != 1 {
		t.Fatalf("mp=%v err=%v", mp, err)
	}

	b, err := MultiPolygonWKB(orb.MultiPolygon{poly})
	if err != nil {
		t.Fatal(err)
	}
	mp, err = MultiPolygonFromWKB(b)
	if err != nil || len(mp) != 1 || len(mp[0][0]) != 4 {
		t.Fatalf("mp=%v err=%v", mp, err)
	}
}

func TestMultiPolygonRejectsPoint(t *testing.T) {
	b, err := PointWKB(&orb.Point{1, 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := MultiPolygonFromWKB(b); !errors.Is(err, ErrGeometryType) {
		t.Fatalf("err=%v", err)
	}
}
