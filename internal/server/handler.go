package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/blsq/iaso/internal/routing"
	"github.com/blsq/iaso/modules/orgunit/domain/ports"
	"github.com/blsq/iaso/modules/orgunit/services"
	"github.com/blsq/iaso/pkg/metrics"
)

const entrypointServer = "server"

type HandlerOptions struct {
	AllowlistPath string
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
	// Gatherer backs /metrics; prometheus.DefaultGatherer when nil.
	Gatherer   prometheus.Gatherer
	Authorizer authorizer
	Tokens     *TokenVerifier

	Access       ports.AccessStore
	Units        *services.OrgUnitService
	Types        *services.OrgUnitTypeService
	AccessFilter *services.AccessFilter
	Seeder       *services.PathSeeder

	// Health reports backing store reachability; nil means always healthy.
	Health func(ctx context.Context) error
}

type api struct {
	logger *zap.Logger
	access ports.AccessStore
	units  *services.OrgUnitService
	types  *services.OrgUnitTypeService
	filter *services.AccessFilter
	seeder *services.PathSeeder
	health func(ctx context.Context) error
}

func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	if opts.AllowlistPath == "" {
		return nil, errors.New("server: allowlist path is required")
	}
	if opts.Authorizer == nil {
		return nil, errors.New("server: authorizer is required")
	}
	if opts.Access == nil || opts.Units == nil || opts.Types == nil || opts.AccessFilter == nil || opts.Seeder == nil {
		return nil, errors.New("server: org unit services are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	a, err := routing.LoadAllowlist(opts.AllowlistPath)
	if err != nil {
		return nil, err
	}
	classifier, err := routing.NewClassifier(a, entrypointServer)
	if err != nil {
		return nil, err
	}

	h := &api{
		logger: logger,
		access: opts.Access,
		units:  opts.Units,
		types:  opts.Types,
		filter: opts.AccessFilter,
		seeder: opts.Seeder,
		health: opts.Health,
	}

	router := routing.NewRouter(classifier, logger)
	ops, internal := routing.RouteClassOps, routing.RouteClassInternalAPI

	router.Handle(ops, http.MethodGet, "/health", http.HandlerFunc(h.handleHealth))
	router.Handle(ops, http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	router.Handle(internal, http.MethodGet, "/orgunit/api/org-units", http.HandlerFunc(h.handleListOrgUnits))
	router.Handle(internal, http.MethodPost, "/orgunit/api/org-units", http.HandlerFunc(h.handleCreateOrgUnit))
	router.Handle(internal, http.MethodGet, "/orgunit/api/org-units/{id}", http.HandlerFunc(h.handleGetOrgUnit))
	router.Handle(internal, http.MethodPatch, "/orgunit/api/org-units/{id}", http.HandlerFunc(h.handlePatchOrgUnit))
	router.Handle(internal, http.MethodGet, "/orgunit/api/org-units/{id}/children", http.HandlerFunc(h.handleChildren))
	router.Handle(internal, http.MethodGet, "/orgunit/api/org-units/{id}/descendants", http.HandlerFunc(h.handleDescendants))
	router.Handle(internal, http.MethodGet, "/orgunit/api/mobile/org-units", http.HandlerFunc(h.handleMobileOrgUnits))
	router.Handle(internal, http.MethodGet, "/orgunit/api/org-unit-types", http.HandlerFunc(h.handleListOrgUnitTypes))
	router.Handle(internal, http.MethodPost, "/orgunit/api/org-unit-types:resolve", http.HandlerFunc(h.handleResolveOrgUnitType))
	router.Handle(internal, http.MethodPost, "/orgunit/api/paths:seed", http.HandlerFunc(h.handleSeedPaths))

	if unlisted := router.Unlisted(); len(unlisted) > 0 {
		return nil, errors.New("server: routes missing from allowlist: " + strings.Join(unlisted, ", "))
	}

	var handler http.Handler = router
	handler = withAuthz(classifier, opts.Authorizer, logger, handler)
	handler = withAuthentication(classifier, opts.Tokens, opts.Access, logger, handler)
	handler = withMetrics(classifier, opts.Metrics, handler)
	handler = withTracing(classifier, handler)
	return handler, nil
}

func (h *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			routing.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	routing.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
