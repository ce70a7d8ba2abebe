package types

import "time"

type Category string

const (
	CategoryNone     Category = ""
	CategoryCountry  Category = "COUNTRY"
	CategoryRegion   Category = "REGION"
	CategoryDistrict Category = "DISTRICT"
	CategoryHF       Category = "HF"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryNone, CategoryCountry, CategoryRegion, CategoryDistrict, CategoryHF:
		return true
	default:
		return false
	}
}

type OrgUnitType struct {
	ID             int64
	Name           string
	ShortName      string
	Category       Category
	Depth          *int
	SubUnitTypeIDs []int64
	ProjectIDs     []int64
	// AccountID is set on types created for an account without any project link.
	AccountID *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrgUnitTypeFilter narrows type lookups. Set fields are ANDed.
type OrgUnitTypeFilter struct {
	Name *string
	// MatchDepth compares Depth exactly, a nil Depth matching only types without depth.
	MatchDepth bool
	Depth      *int
	// ProjectIDs keeps types linked to at least one of the projects.
	ProjectIDs []int64
	// AccountID keeps types linked to a project of the account or owned by it.
	AccountID *int64
}

func SameDepth(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
