package routing

import (
	"errors"
	"slices"
	"strings"
)

type RouteClass string

const (
	RouteClassUI          RouteClass = "ui"
	RouteClassInternalAPI RouteClass = "internal_api"
	RouteClassPublicAPI   RouteClass = "public_api"
	RouteClassOps         RouteClass = "ops"
)

type Classifier struct {
	entrypoint        string
	allowExact        map[string]allowedRoute
	allowPathPatterns []pathPatternRoute
}

type allowedRoute struct {
	path    string
	rc      RouteClass
	methods []string
}

type pathPatternRoute struct {
	pattern PathPattern
	allowedRoute
}

func NewClassifier(a Allowlist, entrypoint string) (*Classifier, error) {
	ep, ok := a.Entrypoints[entrypoint]
	if !ok {
		return nil, errors.New("allowlist: missing entrypoint")
	}
	if len(ep.Routes) == 0 {
		return nil, errors.New("allowlist: entrypoint routes empty")
	}

	exact := make(map[string]allowedRoute, len(ep.Routes))
	var patterns []pathPatternRoute
	for _, r := range ep.Routes {
		if r.Path == "" || r.RouteClass == "" {
			return nil, errors.New("allowlist: invalid route")
		}
		allowed := allowedRoute{path: r.Path, rc: RouteClass(r.RouteClass), methods: upper(r.Methods)}
		if p, ok := parsePathPattern(r.Path); ok {
			patterns = append(patterns, pathPatternRoute{pattern: p, allowedRoute: allowed})
			continue
		}
		exact[r.Path] = allowed
	}
	return &Classifier{entrypoint: entrypoint, allowExact: exact, allowPathPatterns: patterns}, nil
}

func (c *Classifier) Classify(path string) RouteClass {
	if r, ok := c.lookup(path); ok {
		return r.rc
	}

	switch {
	case hasPrefixSegment(path, "/api/v1"):
		return RouteClassPublicAPI
	case isModuleInternalAPI(path):
		return RouteClassInternalAPI
	default:
		return RouteClassUI
	}
}

// Allowed reports whether the allowlist lists method on the route matching path.
func (c *Classifier) Allowed(method, path string) bool {
	r, ok := c.lookup(path)
	if !ok {
		return false
	}
	return slices.Contains(r.methods, strings.ToUpper(method))
}

// Route returns the allowlisted path, possibly a pattern, that matches path.
func (c *Classifier) Route(path string) (string, bool) {
	r, ok := c.lookup(path)
	return r.path, ok
}

func (c *Classifier) lookup(path string) (allowedRoute, bool) {
	if r, ok := c.allowExact[path]; ok {
		return r, true
	}
	for _, p := range c.allowPathPatterns {
		if p.pattern.Match(path) {
			return p.allowedRoute, true
		}
	}
	return allowedRoute{}, false
}

func hasPrefixSegment(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

func isModuleInternalAPI(path string) bool {
	// /{module}/api/*
	if !strings.HasPrefix(path, "/") {
		return false
	}
	rest := strings.TrimPrefix(path, "/")
	module, after, ok := strings.Cut(rest, "/")
	if !ok || module == "" {
		return false
	}
	return hasPrefixSegment("/"+after, "/api")
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return out
}
