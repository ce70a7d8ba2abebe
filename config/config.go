// Package config loads service configuration from the environment and an optional
// .env or YAML file. Nested keys use "__" in environment names, e.g. DATABASE__URL.
package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Configuration struct {
	App      App      `mapstructure:"APP" yaml:"app"`
	Database Database `mapstructure:"DATABASE" yaml:"database"`
	Redis    Redis    `mapstructure:"REDIS" yaml:"redis"`
	Log      Log      `mapstructure:"LOG" yaml:"log"`
	Auth     Auth     `mapstructure:"AUTH" yaml:"auth"`
	Authz    Authz    `mapstructure:"AUTHZ" yaml:"authz"`
	Routing  Routing  `mapstructure:"ROUTING" yaml:"routing"`
	Seeder   Seeder   `mapstructure:"SEEDER" yaml:"seeder"`
	Metrics  Metrics  `mapstructure:"METRICS" yaml:"metrics"`
}

type App struct {
	Name            string        `mapstructure:"NAME" yaml:"name"`
	Addr            string        `mapstructure:"ADDR" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout"`
}

type Database struct {
	URL      string `mapstructure:"URL" yaml:"url"`
	MaxConns int32  `mapstructure:"MAX_CONNS" yaml:"max_conns"`
}

// Redis is optional; an empty Addr disables the project cache.
type Redis struct {
	Addr       string        `mapstructure:"ADDR" yaml:"addr"`
	Password   string        `mapstructure:"PASSWORD" yaml:"password"`
	DB         int           `mapstructure:"DB" yaml:"db"`
	ProjectTTL time.Duration `mapstructure:"PROJECT_TTL" yaml:"project_ttl"`
}

type Log struct {
	Level string `mapstructure:"LEVEL" yaml:"level"`
}

type Auth struct {
	JWTSecret string `mapstructure:"JWT_SECRET" yaml:"jwt_secret"`
	Issuer    string `mapstructure:"ISSUER" yaml:"issuer"`
}

type Authz struct {
	ModelPath  string `mapstructure:"MODEL_PATH" yaml:"model_path"`
	PolicyPath string `mapstructure:"POLICY_PATH" yaml:"policy_path"`
	Mode       string `mapstructure:"MODE" yaml:"mode"`
}

type Routing struct {
	AllowlistPath string `mapstructure:"ALLOWLIST_PATH" yaml:"allowlist_path"`
}

// Seeder schedules the background path seeding pass. An empty Schedule disables it.
type Seeder struct {
	Schedule  string `mapstructure:"SCHEDULE" yaml:"schedule"`
	BatchSize int    `mapstructure:"BATCH_SIZE" yaml:"batch_size"`
}

type Metrics struct {
	Namespace string `mapstructure:"NAMESPACE" yaml:"namespace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP__NAME", "iaso-orgunit")
	v.SetDefault("APP__ADDR", ":8080")
	v.SetDefault("APP__SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("DATABASE__MAX_CONNS", 10)
	v.SetDefault("REDIS__PROJECT_TTL", 5*time.Minute)
	v.SetDefault("LOG__LEVEL", "info")
	v.SetDefault("AUTHZ__MODEL_PATH", "config/access/model.conf")
	v.SetDefault("AUTHZ__POLICY_PATH", "config/access/policy.csv")
	v.SetDefault("AUTHZ__MODE", "enforce")
	v.SetDefault("ROUTING__ALLOWLIST_PATH", "config/routing/allowlist.yaml")
	v.SetDefault("SEEDER__SCHEDULE", "@every 10m")
	v.SetDefault("SEEDER__BATCH_SIZE", 500)
	v.SetDefault("METRICS__NAMESPACE", "iaso")
}

// Load reads the configuration. envPath takes precedence over yamlPath; both may be empty.
func Load(envPath, yamlPath string) (*Configuration, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()
	setDefaults(v)

	switch {
	case envPath != "":
		v.SetConfigFile(envPath)
		v.SetConfigType("env")
	case yamlPath != "":
		v.SetConfigFile(yamlPath)
		v.SetConfigType("yaml")
	}
	if envPath != "" || yamlPath != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	bindEnvs(v, reflect.TypeOf(Configuration{}))

	var conf Configuration
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &conf, nil
}

func bindEnvs(v *viper.Viper, t reflect.Type, path ...string) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	for i := range t.NumField() {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			tag = field.Name
		}
		next := append(append([]string{}, path...), tag)
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Duration(0)) {
			bindEnvs(v, field.Type, next...)
			continue
		}
		_ = v.BindEnv(strings.Join(next, "__"))
	}
}

// DSN returns the configured URL, falling back to DATABASE_URL and the DB_* variables.
func (d Database) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}

	host := getenvDefault("DB_HOST", "127.0.0.1")
	port := getenvDefault("DB_PORT", "5432")
	user := getenvDefault("DB_USER", "iaso")
	pass := getenvDefault("DB_PASSWORD", "iaso")
	name := getenvDefault("DB_NAME", "iaso")
	sslmode := getenvDefault("DB_SSLMODE", "disable")

	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, pass),
		Host:   host + ":" + port,
		Path:   "/" + name,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
