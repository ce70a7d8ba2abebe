package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	conf, err := Load("", "")
	if err != nil {
		t.Fatal(err)
	}
	if conf.App.Addr != ":8080" || conf.Log.Level != "info" || conf.Seeder.BatchSize != 500 {
		t.Fatalf("conf=%+v", conf)
	}
	if conf.Redis.ProjectTTL != 5*time.Minute {
		t.Fatalf("ttl=%v", conf.Redis.ProjectTTL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP__ADDR", ":9090")
	t.Setenv("DATABASE__URL", "postgres://x@db/iaso")
	t.Setenv("REDIS__PROJECT_TTL", "30s")

	conf, err := Load("", "")
	if err != nil {
		t.Fatal(err)
	}
	if conf.App.Addr != ":9090" {
		t.Fatalf("addr=%q", conf.App.Addr)
	}
	if got := conf.Database.DSN(); got != "postgres://x@db/iaso" {
		t.Fatalf("dsn=%q", got)
	}
	if conf.Redis.ProjectTTL != 30*time.Second {
		t.Fatalf("ttl=%v", conf.Redis.ProjectTTL)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "log:\n  level: debug\nauth:\n  jwt_secret: s3cret\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	conf, err := Load("", path)
	if err != nil {
		t.Fatal(err)
	}
	if conf.Log.Level != "debug" || conf.Auth.JWTSecret != "s3cret" {
		t.Fatalf("conf=%+v", conf)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("", filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestDatabaseDSN_Fallbacks(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PASSWORD", "p w")

	got := Database{}.DSN()
	want := "postgres://iaso:p%20w@db:5432/iaso?sslmode=disable"
	if got != want {
		t.Fatalf("dsn=%q want %q", got, want)
	}

	t.Setenv("DATABASE_URL", "postgres://legacy/iaso")
	if got := (Database{}).DSN(); got != "postgres://legacy/iaso" {
		t.Fatalf("dsn=%q", got)
	}
}
