package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/blsq/iaso/internal/routing"
	"github.com/blsq/iaso/modules/orgunit/domain/ports"
	"github.com/blsq/iaso/modules/orgunit/services"
	"github.com/blsq/iaso/pkg/httperr"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"

	constraintPathUnique    = "org_units_path_key"
	constraintParentVersion = "org_units_parent_version_check"
)

func pgError(err error) (*pgconn.PgError, bool) {
	pgErr, ok := errors.AsType[*pgconn.PgError](err)
	return pgErr, ok && pgErr != nil
}

func pgErrorCode(err error) string {
	if pgErr, ok := pgError(err); ok {
		return strings.TrimSpace(pgErr.Code)
	}
	return ""
}

func pgConstraint(err error) string {
	if pgErr, ok := pgError(err); ok {
		return strings.TrimSpace(pgErr.ConstraintName)
	}
	return ""
}

func isPgInvalidInput(err error) bool {
	switch pgErrorCode(err) {
	case "22P02", "22003", "22007", "22008":
		return true
	default:
		return false
	}
}

var errOutsideScope = errors.New("org_unit_outside_scope")

type apiError struct {
	status  int
	code    string
	message string
}

// classifyError maps domain and database errors to a stable status and code. Unknown errors
// come back with ok=false.
func classifyError(err error) (apiError, bool) {
	switch {
	case errors.Is(err, services.ErrInvalidFilter):
		return apiError{http.StatusBadRequest, "invalid_filter", badRequestMessage(err)}, true
	case httperr.IsBadRequest(err):
		return apiError{http.StatusBadRequest, "invalid_request", badRequestMessage(err)}, true
	case errors.Is(err, ports.ErrOrgUnitNotFound):
		return apiError{http.StatusNotFound, "org_unit_not_found", "org unit not found"}, true
	case errors.Is(err, ports.ErrOrgUnitTypeNotFound):
		return apiError{http.StatusNotFound, "org_unit_type_not_found", "org unit type not found"}, true
	case errors.Is(err, ports.ErrProjectNotFound):
		return apiError{http.StatusNotFound, "project_not_found", "project not found"}, true
	case errors.Is(err, services.ErrParentNotFound):
		return apiError{http.StatusUnprocessableEntity, "parent_not_found", "parent not found"}, true
	case errors.Is(err, ports.ErrParentVersionMismatch):
		return apiError{http.StatusUnprocessableEntity, "parent_version_mismatch", "parent belongs to another version"}, true
	case errors.Is(err, ports.ErrProjectAccountMismatch):
		return apiError{http.StatusUnprocessableEntity, "project_account_mismatch", "project belongs to another account"}, true
	case errors.Is(err, ports.ErrParentCycle):
		return apiError{http.StatusConflict, "parent_cycle", "parent is inside the unit's subtree"}, true
	case errors.Is(err, ports.ErrPathPending):
		return apiError{http.StatusConflict, "org_unit_path_pending", "org unit path is not computed yet"}, true
	case errors.Is(err, ports.ErrPathConflict):
		return apiError{http.StatusConflict, "path_conflict", "path conflict"}, true
	case errors.Is(err, errOutsideScope):
		return apiError{http.StatusForbidden, "outside_scope", "org unit would leave the caller's hierarchy"}, true
	case errors.Is(err, ports.ErrProfileNotFound), errors.Is(err, ports.ErrAccountNotFound):
		return apiError{http.StatusForbidden, "profile_not_found", "profile not found"}, true
	}

	switch pgErrorCode(err) {
	case pgUniqueViolation:
		if pgConstraint(err) == constraintPathUnique {
			return apiError{http.StatusConflict, "path_conflict", "path conflict"}, true
		}
		return apiError{http.StatusConflict, "conflict", "conflict"}, true
	case pgCheckViolation:
		if pgConstraint(err) == constraintParentVersion {
			return apiError{http.StatusUnprocessableEntity, "parent_version_mismatch", "parent belongs to another version"}, true
		}
	}
	if isPgInvalidInput(err) {
		return apiError{http.StatusBadRequest, "invalid_request", "invalid input"}, true
	}
	return apiError{}, false
}

func badRequestMessage(err error) string {
	if msg, ok := httperr.Message(err); ok {
		return msg
	}
	return "invalid request"
}

func writeAPIError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error, op string) {
	if e, ok := classifyError(err); ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, e.status, e.code, e.message)
		return
	}
	logger.Error(op, zap.String("path", r.URL.Path), zap.Error(err))
	routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, op, "internal error")
}
