package routing

import (
	"path/filepath"
	"runtime"
	"testing"
)

func TestParseAllowlistYAML_Errors(t *testing.T) {
	t.Parallel()

	_, err := ParseAllowlistYAML([]byte{0xff})
	if err == nil {
		t.Fatal("expected yaml error")
	}

	_, err = ParseAllowlistYAML([]byte("version: 2\nentrypoints: {}"))
	if err == nil {
		t.Fatal("expected version error")
	}

	_, err = ParseAllowlistYAML([]byte("version: 1"))
	if err == nil {
		t.Fatal("expected entrypoints error")
	}

	_, err = ParseAllowlistYAML([]byte(`version: 1
entrypoints:
  server:
    routes:
      - {path: /orgunit/api/org-units, methods: [TRACE], route_class: internal_api}
`))
	if err == nil {
		t.Fatal("expected unknown method error")
	}

	_, err = ParseAllowlistYAML([]byte(`version: 1
entrypoints:
  server:
    routes:
      - {path: /orgunit/api/org-units, methods: [GET], route_class: internal_api}
      - {path: /orgunit/api/org-units, methods: [get, POST], route_class: internal_api}
`))
	if err == nil {
		t.Fatal("expected duplicate route error")
	}
}

func TestLoadAllowlist_RepoFile(t *testing.T) {
	t.Parallel()

	_, file, _, _ := runtime.Caller(0)
	a, err := LoadAllowlist(filepath.Join(filepath.Dir(file), "..", "..", "config", "routing", "allowlist.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewClassifier(a, "server")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Classify("/health"); got != RouteClassOps {
		t.Fatalf("got=%q", got)
	}
	if got := c.Classify("/orgunit/api/org-units/12/children"); got != RouteClassInternalAPI {
		t.Fatalf("got=%q", got)
	}
	if !c.Allowed("patch", "/orgunit/api/org-units/12") {
		t.Fatal("expected PATCH allowed")
	}
	if c.Allowed("DELETE", "/orgunit/api/org-units/12") {
		t.Fatal("unexpected DELETE allowed")
	}
}

func TestLoadAllowlist_Missing(t *testing.T) {
	t.Parallel()

	if _, err := LoadAllowlist(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error")
	}
}
