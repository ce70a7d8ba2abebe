package routing

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Allowlist is the routing/allowlist.yaml document. Every route the server registers must be listed.
type Allowlist struct {
	Version     int                   `yaml:"version"`
	Entrypoints map[string]Entrypoint `yaml:"entrypoints"`
}

type Entrypoint struct {
	Routes []Route `yaml:"routes"`
}

type Route struct {
	Path       string   `yaml:"path"`
	Methods    []string `yaml:"methods"`
	RouteClass string   `yaml:"route_class"`
}

var knownMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPatch:  true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

func ParseAllowlistYAML(b []byte) (Allowlist, error) {
	var a Allowlist
	if err := yaml.Unmarshal(b, &a); err != nil {
		return Allowlist{}, err
	}
	if a.Version != 1 {
		return Allowlist{}, errors.New("allowlist: unsupported version")
	}
	if a.Entrypoints == nil {
		return Allowlist{}, errors.New("allowlist: missing entrypoints")
	}
	for name, ep := range a.Entrypoints {
		seen := make(map[string]bool, len(ep.Routes))
		for _, r := range ep.Routes {
			for _, m := range r.Methods {
				m = strings.ToUpper(strings.TrimSpace(m))
				if !knownMethods[m] {
					return Allowlist{}, fmt.Errorf("allowlist: %s %s: unknown method %q", name, r.Path, m)
				}
				key := m + " " + r.Path
				if seen[key] {
					return Allowlist{}, fmt.Errorf("allowlist: %s: duplicate route %s", name, key)
				}
				seen[key] = true
			}
		}
	}
	return a, nil
}

func LoadAllowlist(path string) (Allowlist, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Allowlist{}, fmt.Errorf("allowlist: %w", err)
	}
	a, err := ParseAllowlistYAML(b)
	if err != nil {
		return Allowlist{}, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}
