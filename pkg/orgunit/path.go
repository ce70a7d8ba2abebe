package orgunit

import (
	"errors"
	"slices"
	"strconv"
	"strings"
)

var ErrPathInvalid = errors.New("org_unit_path_invalid")

// Path is the materialized ancestor chain of an org unit, root first, ending with the unit itself.
type Path []int64

func (p Path) Depth() int { return len(p) }

func (p Path) Equal(other Path) bool { return slices.Equal(p, other) }

// Leaf returns the id of the unit owning the path.
func (p Path) Leaf() (int64, bool) {
	if len(p) == 0 {
		return 0, false
	}
	return p[len(p)-1], true
}

// Child returns a fresh path for a direct child; p is never aliased.
func (p Path) Child(id int64) Path {
	out := make(Path, 0, len(p)+1)
	out = append(out, p...)
	return append(out, id)
}

// HasPrefix reports whether prefix is an ancestor chain of p (or p itself).
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) == 0 || len(prefix) > len(p) {
		return false
	}
	return slices.Equal(p[:len(prefix)], prefix)
}

func (p Path) IsChildOf(parent Path) bool {
	return len(p) == len(parent)+1 && p.HasPrefix(parent)
}

func (p Path) IsDescendantOf(ancestor Path) bool {
	return len(p) > len(ancestor) && p.HasPrefix(ancestor)
}

func (p Path) Contains(id int64) bool { return slices.Contains(p, id) }

func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	return slices.Clone(p)
}

func (p Path) Int64s() []int64 { return []int64(p) }

// String renders the path as dot-separated labels ("1.20.300").
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, id := range p {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ".")
}

func ParsePath(raw string) (Path, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrPathInvalid
	}
	labels := strings.Split(raw, ".")
	out := make(Path, 0, len(labels))
	for _, l := range labels {
		id, err := strconv.ParseInt(l, 10, 64)
		if err != nil || id <= 0 {
			return nil, ErrPathInvalid
		}
		if out.Contains(id) {
			return nil, ErrPathInvalid
		}
		out = append(out, id)
	}
	return out, nil
}
