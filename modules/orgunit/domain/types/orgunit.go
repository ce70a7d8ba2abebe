package types

import (
	"slices"
	"time"

	"github.com/paulmach/orb"

	orgunitpkg "github.com/blsq/iaso/pkg/orgunit"
)

type ValidationStatus string

const (
	ValidationStatusNew      ValidationStatus = "NEW"
	ValidationStatusValid    ValidationStatus = "VALID"
	ValidationStatusRejected ValidationStatus = "REJECTED"
)

func (s ValidationStatus) Valid() bool {
	switch s {
	case ValidationStatusNew, ValidationStatusValid, ValidationStatusRejected:
		return true
	default:
		return false
	}
}

// PathState tells whether Path has been computed. A PENDING unit sits below a parent that has no path yet.
type PathState string

const (
	PathStateSeeded  PathState = "SEEDED"
	PathStatePending PathState = "PENDING"
)

type OrgUnit struct {
	ID               int64
	Name             string
	ParentID         *int64
	Path             orgunitpkg.Path
	PathState        PathState
	OrgUnitTypeID    *int64
	VersionID        *int64
	ValidationStatus ValidationStatus
	Location         *orb.Point
	Altitude         *float64
	Geom             orb.MultiPolygon
	Catchment        orb.MultiPolygon
	SourceRef        *string
	Aliases          []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (u OrgUnit) IsRoot() bool { return u.ParentID == nil }

func (u OrgUnit) IsPending() bool { return u.PathState == PathStatePending || u.Path == nil }

// Clone returns a copy that shares no slices or pointers with u.
func (u OrgUnit) Clone() OrgUnit {
	out := u
	out.ParentID = cloneInt64(u.ParentID)
	out.OrgUnitTypeID = cloneInt64(u.OrgUnitTypeID)
	out.VersionID = cloneInt64(u.VersionID)
	out.Path = u.Path.Clone()
	if u.Location != nil {
		p := *u.Location
		out.Location = &p
	}
	if u.Altitude != nil {
		a := *u.Altitude
		out.Altitude = &a
	}
	if u.SourceRef != nil {
		s := *u.SourceRef
		out.SourceRef = &s
	}
	if u.Geom != nil {
		out.Geom = u.Geom.Clone()
	}
	if u.Catchment != nil {
		out.Catchment = u.Catchment.Clone()
	}
	out.Aliases = slices.Clone(u.Aliases)
	return out
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func SameInt64(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
