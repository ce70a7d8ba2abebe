package types

type Account struct {
	ID               int64
	Name             string
	DefaultVersionID *int64
}

type Project struct {
	ID                  int64
	Name                string
	AppID               string
	AccountID           int64
	NeedsAuthentication bool
	OrgUnitTypeIDs      []int64
}

type DataSource struct {
	ID         int64
	Name       string
	ProjectIDs []int64
}

type SourceVersion struct {
	ID           int64
	DataSourceID int64
	Number       int
}

// User is the request subject. The zero value is the anonymous user.
type User struct {
	ID          int64
	Anonymous   bool
	IsSuperuser bool
	AccountID   int64
	// OrgUnitIDs is the assigned org-unit scope; empty means unrestricted within the account.
	OrgUnitIDs []int64
}

func AnonymousUser() User { return User{Anonymous: true} }

func (u User) IsAuthenticated() bool { return !u.Anonymous && u.ID != 0 }
