package types

import "time"

type OrgUnitChangeKind string

const (
	OrgUnitChangeCreate OrgUnitChangeKind = "CREATE"
	OrgUnitChangeUpdate OrgUnitChangeKind = "UPDATE"
	OrgUnitChangePath   OrgUnitChangeKind = "PATH"
)

type OrgUnitSnapshot struct {
	Name             string           `json:"name"`
	ParentID         *int64           `json:"parent_id"`
	Path             []int64          `json:"path"`
	PathState        PathState        `json:"path_state"`
	ValidationStatus ValidationStatus `json:"validation_status"`
}

func SnapshotOf(u OrgUnit) OrgUnitSnapshot {
	return OrgUnitSnapshot{
		Name:             u.Name,
		ParentID:         cloneInt64(u.ParentID),
		Path:             u.Path.Clone().Int64s(),
		PathState:        u.PathState,
		ValidationStatus: u.ValidationStatus,
	}
}

type OrgUnitChange struct {
	ID        string
	OrgUnitID int64
	UserID    *int64
	Kind      OrgUnitChangeKind
	Old       *OrgUnitSnapshot
	New       OrgUnitSnapshot
	CreatedAt time.Time
}
