package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *Config) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithBackend selects the content backend
func WithBackend(kind string) Option {
	return func(c *Config) error {
		c.Backend = kind
		return nil
	}
}

// WithDatabase selects the postgres backend
func WithDatabase(url, schema string) Option {
	return func(c *Config) error {
		if url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.Backend = BackendPostgres
		c.DatabaseURL = url
		c.DBSchema = schema
		return nil
	}
}

// WithSQLite selects the sqlite backend
func WithSQLite(path string) Option {
	return func(c *Config) error {
		c.Backend = BackendSQLite
		c.SQLitePath = path
		return nil
	}
}

// WithXMLDocument selects the xmlfile backend reading key (and an optional preview key)
// from the store at storageURL
func WithXMLDocument(storageURL, key, previewKey string) Option {
	return func(c *Config) error {
		c.Backend = BackendXMLFile
		c.StorageURL = storageURL
		if key != "" {
			c.XMLKey = key
		}
		c.XMLPreviewKey = previewKey
		return nil
	}
}

// WithSeedFile publishes an XML content cache file into the memory backend at build time
func WithSeedFile(path string) Option {
	return func(c *Config) error {
		c.SeedFile = path
		return nil
	}
}

// WithContentTypesFile sets the YAML content type definitions
func WithContentTypesFile(path string) Option {
	return func(c *Config) error {
		c.ContentTypesFile = path
		return nil
	}
}

// WithReloadInterval sets the periodic reload interval; zero disables it
func WithReloadInterval(d time.Duration) Option {
	return func(c *Config) error {
		c.ReloadInterval = d
		return nil
	}
}

// WithPreviewSecret gates preview requests behind HS256 tokens signed with secret
func WithPreviewSecret(secret string) Option {
	return func(c *Config) error {
		c.PreviewJWTSecret = secret
		return nil
	}
}
