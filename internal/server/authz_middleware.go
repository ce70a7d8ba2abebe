package server

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/blsq/iaso/internal/routing"
	"github.com/blsq/iaso/pkg/authz"
)

type authorizer interface {
	Authorize(subject string, object string, action string) (allowed bool, enforced bool, err error)
}

func withAuthz(classifier *routing.Classifier, a authorizer, logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		rc := classifier.Classify(path)

		object, action, shouldCheck := authzRequirementForRoute(r.Method, path)
		if !shouldCheck {
			next.ServeHTTP(w, r)
			return
		}

		role := authz.RoleAnonymous
		if p, ok := currentPrincipal(r.Context()); ok {
			role = p.Role
		}
		subject := authz.SubjectFromRole(role)

		allowed, enforced, err := a.Authorize(subject, object, action)
		if err != nil {
			logger.Error("authorize", zap.String("subject", subject), zap.String("object", object), zap.Error(err))
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "authz_error", "authz error")
			return
		}
		if !allowed && !enforced {
			logger.Info("authz shadow deny", zap.String("subject", subject), zap.String("object", object), zap.String("action", action))
		}
		if enforced && !allowed {
			routing.WriteError(w, r, rc, http.StatusForbidden, "forbidden", "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func authzRequirementForRoute(method string, path string) (object string, action string, ok bool) {
	switch {
	case path == "/orgunit/api/org-unit-types:resolve":
		if method == http.MethodPost {
			return authz.ObjectOrgUnitTypes, authz.ActionAdmin, true
		}
		return "", "", false
	case path == "/orgunit/api/org-unit-types":
		if method == http.MethodGet {
			return authz.ObjectOrgUnitTypes, authz.ActionRead, true
		}
		return "", "", false
	case path == "/orgunit/api/paths:seed":
		if method == http.MethodPost {
			return authz.ObjectPaths, authz.ActionAdmin, true
		}
		return "", "", false
	case path == "/orgunit/api/mobile/org-units":
		if method == http.MethodGet {
			return authz.ObjectOrgUnits, authz.ActionRead, true
		}
		return "", "", false
	case path == "/orgunit/api/org-units" || strings.HasPrefix(path, "/orgunit/api/org-units/"):
		switch method {
		case http.MethodGet:
			return authz.ObjectOrgUnits, authz.ActionRead, true
		case http.MethodPost, http.MethodPatch:
			return authz.ObjectOrgUnits, authz.ActionAdmin, true
		default:
			return "", "", false
		}
	default:
		return "", "", false
	}
}
