package ports

import (
	"context"
	"time"

	"github.com/blsq/iaso/modules/orgunit/domain/types"
)

// AccessStore reads the account, project and profile data that scopes org unit queries.
type AccessStore interface {
	GetUser(ctx context.Context, id int64) (types.User, error)
	GetAccount(ctx context.Context, id int64) (types.Account, error)
	// FindProjectByAppID restricts the lookup to accountID when it is not nil.
	FindProjectByAppID(ctx context.Context, appID string, accountID *int64) (types.Project, error)
	// ListAccountVersionIDs returns the versions of every data source linked to a project of the account.
	ListAccountVersionIDs(ctx context.Context, accountID int64) ([]int64, error)
}

type ProjectCache interface {
	GetProject(ctx context.Context, key string) (types.Project, bool, error)
	SetProject(ctx context.Context, key string, project types.Project, ttl time.Duration) error
}
