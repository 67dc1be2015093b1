// Package config loads the published content runtime configuration from defaults, a YAML file
// and environment variables, and builds a ready Cache from it.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Backend kinds.
const (
	BackendMemory   = "memory"
	BackendXMLFile  = "xmlfile"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Config holds the runtime configuration. Environment variables override YAML values.
// Secrets must only come from environment variables.
type Config struct {
	// Server configuration
	Port        string `yaml:"port" env:"PORT" env-description:"HTTP port"`
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-description:"development, production or testing"`

	// Content backend: memory, xmlfile, postgres or sqlite
	Backend     string `yaml:"backend" env:"CONTENT_BACKEND" env-description:"content backend"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL" env-description:"postgres connection string"`
	DBSchema    string `yaml:"db_schema" env:"DB_SCHEMA" env-description:"postgres search_path"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"AUTO_MIGRATE" env-description:"apply postgres migrations at startup"`
	SQLitePath  string `yaml:"sqlite_path" env:"SQLITE_PATH" env-description:"sqlite database file"`
	SeedFile    string `yaml:"seed_file" env:"SEED_FILE" env-description:"XML content cache file published into the memory backend"`

	// Document storage of the xmlfile backend: memory://, file:///dir or s3://bucket/prefix?region=..
	StorageURL      string `yaml:"storage_url" env:"STORAGE_URL" env-description:"document store URL"`
	XMLKey          string `yaml:"xml_key" env:"XML_KEY" env-description:"key of the published XML document"`
	XMLPreviewKey   string `yaml:"xml_preview_key" env:"XML_PREVIEW_KEY" env-description:"key of the preview XML document"`
	S3AccessKeyID   string `yaml:"-" env:"S3_ACCESS_KEY_ID"`
	S3SecretKey     string `yaml:"-" env:"S3_SECRET_ACCESS_KEY"`
	S3CreateBucket  bool   `yaml:"s3_create_bucket" env:"S3_CREATE_BUCKET"`
	S3DefaultRegion string `yaml:"s3_region" env:"S3_REGION"`

	// Content types and conversion
	ContentTypesFile string `yaml:"content_types_file" env:"CONTENT_TYPES_FILE" env-description:"YAML content type definitions"`
	FallbackEditor   string `yaml:"fallback_editor" env:"FALLBACK_EDITOR" env-description:"editor of undeclared properties"`

	// Cache behaviour
	ReloadInterval time.Duration `yaml:"reload_interval" env:"RELOAD_INTERVAL" env-description:"periodic reload interval, 0 disables"`
	WarmOnReload   bool          `yaml:"warm_on_reload" env:"WARM_ON_RELOAD" env-description:"materialize shared values after reload"`
	LogEvents      bool          `yaml:"log_events" env:"LOG_EVENTS" env-description:"log cache events"`

	// Preview access; when empty preview requests are not gated
	PreviewJWTSecret string `yaml:"-" env:"PREVIEW_JWT_SECRET"`
}

// Load constructs a Config by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaults() Config {
	return Config{
		Port:            "8080",
		Environment:     "development",
		Backend:         BackendMemory,
		SQLitePath:      "./data/content.db",
		StorageURL:      "memory://",
		XMLKey:          "umbraco.config",
		S3DefaultRegion: "us-east-1",
		FallbackEditor:  "text",
		ReloadInterval:  30 * time.Second,
		LogEvents:       true,
	}
}

// WithEnv applies environment variable overrides. Unset variables keep their current value.
func WithEnv() Option {
	return func(c *Config) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithFile reads a YAML file, then applies environment variable overrides.
func WithFile(path string) Option {
	return func(c *Config) error {
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
		return nil
	}
}

// Usage writes the environment variable help.
func Usage(w io.Writer) {
	var c Config
	cleanenv.FUsage(w, &c, nil)()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.Backend {
	case BackendMemory:
	case BackendXMLFile:
		if _, err := parseStorageURL(c.StorageURL); err != nil {
			return err
		}
		if c.XMLKey == "" {
			return errors.New("xml_key is required for the xmlfile backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite_path is required when using sqlite")
		}
	default:
		return fmt.Errorf("backend must be one of memory, xmlfile, postgres, sqlite, got: %s", c.Backend)
	}

	if c.ReloadInterval < 0 {
		return errors.New("reload_interval cannot be negative")
	}
	return nil
}

// storageLocation is a parsed STORAGE_URL.
type storageLocation struct {
	Kind      string // memory, fs, s3
	Path      string // fs base directory
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// parseStorageURL parses memory://, file:///path and s3://bucket/prefix?region=&endpoint=&path_style=.
func parseStorageURL(raw string) (*storageLocation, error) {
	if raw == "" || raw == "memory" || raw == "memory://" {
		return &storageLocation{Kind: "memory"}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid STORAGE_URL %q: %w", raw, err)
	}

	switch u.Scheme {
	case "file":
		path := u.Path
		if u.Host != "" {
			path = u.Host + path
		}
		if path == "" {
			return nil, errors.New("filesystem path cannot be empty in STORAGE_URL")
		}
		return &storageLocation{Kind: "fs", Path: path}, nil
	case "s3":
		if u.Host == "" {
			return nil, errors.New("S3 bucket name cannot be empty in STORAGE_URL")
		}
		q := u.Query()
		return &storageLocation{
			Kind:      "s3",
			Bucket:    u.Host,
			Prefix:    strings.Trim(u.Path, "/"),
			Region:    q.Get("region"),
			Endpoint:  q.Get("endpoint"),
			PathStyle: q.Get("path_style") == "true",
		}, nil
	}
	return nil, fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", raw)
}
