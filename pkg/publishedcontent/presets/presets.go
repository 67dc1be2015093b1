package presets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/tendant/published-content/pkg/publishedcontent"
	"github.com/tendant/published-content/pkg/publishedcontent/backend/memory"
	"github.com/tendant/published-content/pkg/publishedcontent/backend/xmlfile"
	"github.com/tendant/published-content/pkg/publishedcontent/config"
	"github.com/tendant/published-content/pkg/publishedcontent/contenttype"
	"github.com/tendant/published-content/pkg/publishedcontent/converters"
	fsstorage "github.com/tendant/published-content/pkg/publishedcontent/storage/fs"
)

// Configuration Presets
//
// This package provides ready-made caches for common use cases. Presets eliminate boilerplate
// while remaining customizable.

// NewDevelopment creates a cache configured for local development.
//
// Features:
//   - XML content cache document on the filesystem at ./dev-data/ (edit it and Reload)
//   - An empty document is written when none exists
//   - Event logging enabled
//
// The returned cleanup function closes the cache and removes the data directory.
//
// Example:
//
//	cache, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (*publishedcontent.Cache, func(), error) {
	cfg := &devConfig{
		storageDir: "./dev-data",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	store, err := fsstorage.New(fsstorage.Config{BaseDir: cfg.storageDir})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create filesystem storage: %w", err)
	}
	backend := xmlfile.New(store, xmlfile.WithLogger(cfg.logger))

	ctx := context.Background()
	if _, err := store.Stat(ctx, xmlfile.DefaultKey); err != nil {
		if err := backend.Save(ctx, &publishedcontent.NodeSet{}); err != nil {
			return nil, nil, fmt.Errorf("failed to create content document: %w", err)
		}
	}

	picker := converters.NewContentPicker(nil)
	types, err := contenttype.New(converters.Default(picker), contenttype.WithLogger(cfg.logger))
	if err != nil {
		return nil, nil, err
	}
	if cfg.typesFile != "" {
		if err := types.LoadFile(cfg.typesFile); err != nil {
			return nil, nil, fmt.Errorf("failed to load content types: %w", err)
		}
	}

	cache, err := publishedcontent.New(
		publishedcontent.WithBackend(backend),
		publishedcontent.WithContentTypes(types),
		publishedcontent.WithEventSink(publishedcontent.NewLoggingEventSink(cfg.logger)),
		publishedcontent.WithLogger(cfg.logger),
		publishedcontent.WithMetrics(publishedcontent.NewCountingMetrics()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cache: %w", err)
	}
	picker.Bind(cache)

	if _, err := cache.Reload(ctx); err != nil {
		cache.Close()
		return nil, nil, err
	}

	cleanup := func() {
		cache.Close()
		os.RemoveAll(cfg.storageDir)
	}
	return cache, cleanup, nil
}

// NewTesting creates a loaded cache for unit and integration tests.
//
// Features:
//   - In-memory backend (isolated per test)
//   - No event logging (cleaner test output)
//   - Optional fixture tree (WithTestFixtures) or caller-supplied nodes (WithTestNodes)
//   - Automatic Close via t.Cleanup()
//
// The memory backend is returned so tests can publish changes and Reload.
func NewTesting(t testing.TB, opts ...TestingOption) (*publishedcontent.Cache, *memory.Backend) {
	t.Helper()
	cfg := &testConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx := context.Background()
	backend := memory.New()
	nodes := cfg.nodes
	if cfg.fixtures {
		nodes = append(Fixtures(), nodes...)
	}
	if err := backend.SaveAndPublish(ctx, nodes...); err != nil {
		t.Fatalf("failed to publish test nodes: %v", err)
	}

	picker := converters.NewContentPicker(nil)
	types, err := contenttype.New(converters.Default(picker))
	if err != nil {
		t.Fatalf("failed to create content types: %v", err)
	}
	defs := cfg.types
	if cfg.fixtures {
		defs = append(FixtureTypes(), defs...)
	}
	for _, def := range defs {
		if err := types.Define(def); err != nil {
			t.Fatalf("failed to define content type %s: %v", def.Alias, err)
		}
	}

	cache, err := publishedcontent.New(
		publishedcontent.WithBackend(backend),
		publishedcontent.WithContentTypes(types),
		publishedcontent.WithMetrics(publishedcontent.NewCountingMetrics()),
	)
	if err != nil {
		t.Fatalf("failed to create test cache: %v", err)
	}
	picker.Bind(cache)
	t.Cleanup(func() { cache.Close() })

	if _, err := cache.Reload(ctx); err != nil {
		t.Fatalf("failed to load test cache: %v", err)
	}
	return cache, backend
}

// NewProduction creates a cache configured from the environment for production deployment.
//
// Required Environment Variables:
//   - CONTENT_BACKEND: "xmlfile", "postgres" or "sqlite" (memory is not allowed)
//   - DATABASE_URL: for postgres
//   - STORAGE_URL: file:// or s3:// for xmlfile
//
// The first snapshot is loaded before returning. Close the returned runtime on shutdown.
func NewProduction(ctx context.Context, logger *slog.Logger, opts ...config.Option) (*config.Runtime, error) {
	cfg, err := config.Load(append([]config.Option{config.WithEnv()}, opts...)...)
	if err != nil {
		return nil, err
	}
	if err := validateProduction(cfg); err != nil {
		return nil, err
	}

	rt, err := cfg.BuildCache(ctx, logger)
	if err != nil {
		return nil, err
	}
	if _, err := rt.Cache.Reload(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func validateProduction(cfg *config.Config) error {
	if cfg.Backend == config.BackendMemory {
		return fmt.Errorf("production preset requires a persistent backend (xmlfile, postgres or sqlite, not memory)")
	}
	if cfg.Backend == config.BackendXMLFile && (cfg.StorageURL == "" || cfg.StorageURL == "memory" || cfg.StorageURL == "memory://") {
		return fmt.Errorf("production preset requires persistent document storage (file:// or s3://, not memory)")
	}
	return nil
}

// Option types for customization

type devConfig struct {
	storageDir string
	typesFile  string
	logger     *slog.Logger
}

type testConfig struct {
	fixtures bool
	nodes    []*publishedcontent.Node
	types    []contenttype.Definition
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevStorage sets the development storage directory
func WithDevStorage(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.storageDir = dir
	}
}

// WithDevContentTypes loads content type definitions from a YAML file
func WithDevContentTypes(path string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.typesFile = path
	}
}

// WithDevLogger sets the logger
func WithDevLogger(logger *slog.Logger) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.logger = logger
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithTestFixtures publishes the fixture tree (see Fixtures)
func WithTestFixtures() TestingOption {
	return func(cfg *testConfig) {
		cfg.fixtures = true
	}
}

// WithTestNodes publishes the given nodes
func WithTestNodes(nodes ...*publishedcontent.Node) TestingOption {
	return func(cfg *testConfig) {
		cfg.nodes = append(cfg.nodes, nodes...)
	}
}

// WithTestContentTypes defines content types
func WithTestContentTypes(defs ...contenttype.Definition) TestingOption {
	return func(cfg *testConfig) {
		cfg.types = append(cfg.types, defs...)
	}
}

// Fixtures returns a small site: a home page with a news and an about page. News links to
// home through a content picker.
func Fixtures() []*publishedcontent.Node {
	prop := func(alias, value string) publishedcontent.RawProperty {
		return publishedcontent.RawProperty{Alias: alias, Value: value}
	}
	return []*publishedcontent.Node{
		{ID: 1, ParentID: -1, Level: 1, Name: "Home", ContentTypeAlias: "home", Path: "-1,1",
			Properties: []publishedcontent.RawProperty{prop("title", "Welcome"), prop("visits", "42"), prop("body", "# Hello")}},
		{ID: 2, ParentID: 1, Level: 2, SortOrder: 0, Name: "News", ContentTypeAlias: "page", Path: "-1,1,2",
			Properties: []publishedcontent.RawProperty{prop("title", "News"), prop("related", "1")}},
		{ID: 3, ParentID: 1, Level: 2, SortOrder: 1, Name: "About", ContentTypeAlias: "page", Path: "-1,1,3",
			Properties: []publishedcontent.RawProperty{prop("title", "  ")}},
	}
}

// FixtureTypes returns the content types of Fixtures.
func FixtureTypes() []contenttype.Definition {
	return []contenttype.Definition{
		{Alias: "home", Properties: []contenttype.PropertyDefinition{
			{Alias: "title", Editor: "text"},
			{Alias: "visits", Editor: "integer"},
			{Alias: "body", Editor: "markdown"},
		}},
		{Alias: "page", Properties: []contenttype.PropertyDefinition{
			{Alias: "title", Editor: "text"},
			{Alias: "related", Editor: "contentpicker"},
		}},
	}
}
