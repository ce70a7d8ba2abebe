package routing

import (
	"net/http"
	"runtime/debug"
	"slices"

	"go.uber.org/zap"
)

type Router struct {
	classifier *Classifier
	logger     *zap.Logger
	routes     map[string]map[string]routeEntry
	patterns   []patternEntry
}

type routeEntry struct {
	rc      RouteClass
	handler http.Handler
}

type patternEntry struct {
	pattern PathPattern
	methods map[string]routeEntry
}

func NewRouter(classifier *Classifier, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		classifier: classifier,
		logger:     logger,
		routes:     make(map[string]map[string]routeEntry),
	}
}

// Handle registers h. Paths containing "{name}" segments are matched as patterns and the
// segment values are available through Request.PathValue.
func (r *Router) Handle(rc RouteClass, method string, path string, h http.Handler) {
	entry := routeEntry{rc: rc, handler: r.recoverer(rc, h)}

	if p, ok := parsePathPattern(path); ok {
		for i := range r.patterns {
			if r.patterns[i].pattern.raw == path {
				r.patterns[i].methods[method] = entry
				return
			}
		}
		r.patterns = append(r.patterns, patternEntry{pattern: p, methods: map[string]routeEntry{method: entry}})
		return
	}

	if r.routes[path] == nil {
		r.routes[path] = make(map[string]routeEntry)
	}
	r.routes[path][method] = entry
}

func (r *Router) recoverer(rc RouteClass, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("handler panic",
					zap.String("path", req.URL.Path),
					zap.String("method", req.Method),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				WriteError(w, req, rc, http.StatusInternalServerError, "internal_error", "internal error")
			}
		}()
		h.ServeHTTP(w, req)
	})
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	methods, params, ok := r.match(req.URL.Path)
	if !ok {
		WriteError(w, req, r.classifier.Classify(req.URL.Path), http.StatusNotFound, "not_found", "not found")
		return
	}
	entry, ok := methods[req.Method]
	if !ok {
		WriteError(w, req, entrypointClass(methods, r.classifier.Classify(req.URL.Path)), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	for name, value := range params {
		req.SetPathValue(name, value)
	}
	entry.handler.ServeHTTP(w, req)
}

// Exact paths win over patterns; patterns are tried in registration order.
func (r *Router) match(path string) (map[string]routeEntry, map[string]string, bool) {
	if methods, ok := r.routes[path]; ok {
		return methods, nil, true
	}
	for _, p := range r.patterns {
		if params, ok := p.pattern.Params(path); ok {
			return p.methods, params, true
		}
	}
	return nil, nil, false
}

// Unlisted returns the registered "METHOD path" pairs the allowlist does not list.
func (r *Router) Unlisted() []string {
	var out []string
	check := func(path string, methods map[string]routeEntry) {
		for method := range methods {
			if !r.classifier.Allowed(method, path) {
				out = append(out, method+" "+path)
			}
		}
	}
	for path, methods := range r.routes {
		check(path, methods)
	}
	for _, p := range r.patterns {
		check(p.pattern.raw, p.methods)
	}
	slices.Sort(out)
	return out
}

func entrypointClass(methods map[string]routeEntry, fallback RouteClass) RouteClass {
	for _, e := range methods {
		return e.rc
	}
	return fallback
}
