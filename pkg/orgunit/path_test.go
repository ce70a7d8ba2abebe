package orgunit

import (
	"errors"
	"testing"
)

func TestPathRelations(t *testing.T) {
	country := Path{1}
	region := country.Child(2)
	district := region.Child(3)

	if !district.HasPrefix(country) || !district.HasPrefix(district) {
		t.Fatal("expected prefix")
	}
	if district.HasPrefix(Path{}) || district.HasPrefix(Path{1, 3}) {
		t.Fatal("unexpected prefix")
	}
	if !region.IsChildOf(country) || district.IsChildOf(country) {
		t.Fatal("child relation wrong")
	}
	if !district.IsDescendantOf(country) || country.IsDescendantOf(country) {
		t.Fatal("descendant relation wrong")
	}
	if leaf, ok := district.Leaf(); !ok || leaf != 3 {
		t.Fatalf("leaf=%d ok=%v", leaf, ok)
	}
	if _, ok := Path(nil).Leaf(); ok {
		t.Fatal("nil path has no leaf")
	}
}

func TestPathChildDoesNotAlias(t *testing.T) {
	base := make(Path, 1, 8)
	base[0] = 1
	a := base.Child(2)
	b := base.Child(3)
	if a[1] != 2 || b[1] != 3 {
		t.Fatalf("a=%v b=%v", a, b)
	}
}

func TestPathStringRoundTrip(t *testing.T) {
	p := Path{10, 200, 3000}
	if p.String() != "10.200.3000" {
		t.Fatalf("string=%q", p.String())
	}
	got, err := ParsePath(p.String())
	if err != nil || !got.Equal(p) {
		t.Fatalf("got=%v err=%v", got, err)
	}
}

func TestParsePathInvalid(t *testing.T) {
	for _, raw := range []string{"", "1..2", "a.b", "1.-2", "1.2.1", "0"} {
		if _, err := ParsePath(raw); !errors.Is(err, ErrPathInvalid) {
			t.Fatalf("raw=%q err=%v", raw, err)
		}
	}
}
