package server

import (
	"context"

	"github.com/blsq/iaso/modules/orgunit/domain/types"
	"github.com/blsq/iaso/pkg/authz"
)

type Principal struct {
	User types.User
	Role string
}

func anonymousPrincipal() Principal {
	return Principal{User: types.AnonymousUser(), Role: authz.RoleAnonymous}
}

func principalForUser(u types.User) Principal {
	role := authz.RoleUser
	if u.IsSuperuser {
		role = authz.RoleSuperuser
	}
	return Principal{User: u, Role: role}
}

type principalContextKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

func currentPrincipal(ctx context.Context) (Principal, bool) {
	v := ctx.Value(principalContextKey{})
	if v == nil {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// currentUser is the anonymous user when no principal was attached.
func currentUser(ctx context.Context) types.User {
	if p, ok := currentPrincipal(ctx); ok {
		return p.User
	}
	return types.AnonymousUser()
}
