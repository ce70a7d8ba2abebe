package authz

const (
	RoleAnonymous = "anonymous"
	RoleUser      = "user"
	RoleSuperuser = "superuser"
)

const (
	ActionRead  = "read"
	ActionAdmin = "admin"
)

const (
	ObjectOrgUnits     = "orgunit.org-units"
	ObjectOrgUnitTypes = "orgunit.org-unit-types"
	ObjectPaths        = "orgunit.paths"
)
