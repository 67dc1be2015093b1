package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/published-content/pkg/publishedcontent"
	"github.com/tendant/published-content/pkg/publishedcontent/backend/memory"
	"github.com/tendant/published-content/pkg/publishedcontent/backend/postgres"
	"github.com/tendant/published-content/pkg/publishedcontent/backend/sqlite"
	"github.com/tendant/published-content/pkg/publishedcontent/backend/xmlfile"
	"github.com/tendant/published-content/pkg/publishedcontent/contenttype"
	"github.com/tendant/published-content/pkg/publishedcontent/converters"
	fsstorage "github.com/tendant/published-content/pkg/publishedcontent/storage/fs"
	memorystorage "github.com/tendant/published-content/pkg/publishedcontent/storage/memory"
	s3storage "github.com/tendant/published-content/pkg/publishedcontent/storage/s3"
)

// Runtime is a built cache with the collaborators the surfaces need.
type Runtime struct {
	Cache    *publishedcontent.Cache
	Types    *contenttype.Registry
	Metrics  *publishedcontent.CountingMetrics
	Store    publishedcontent.DocumentStore // set for the xmlfile backend
	Postgres *postgres.Backend              // set for the postgres backend
	Memory   *memory.Backend                // set for the memory backend
	Writer   NodeWriter                     // set for the SQL backends

	closers []func() error
}

// NodeWriter stores draft nodes and publishes them. The SQL backends implement it.
type NodeWriter interface {
	SaveNode(ctx context.Context, state string, node *publishedcontent.Node) error
	Publish(ctx context.Context, id int) error
}

// Close closes the cache and the connections opened by BuildCache.
func (r *Runtime) Close() error {
	errs := []error{r.Cache.Close()}
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// BuildCache creates the backend, content types and converters and wires them into a Cache.
// No snapshot is loaded; call Reload on the returned cache.
func (c *Config) BuildCache(ctx context.Context, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{Metrics: publishedcontent.NewCountingMetrics()}

	picker := converters.NewContentPicker(nil)
	types, err := contenttype.New(converters.Default(picker),
		contenttype.WithLogger(logger),
		contenttype.WithFallbackEditor(c.FallbackEditor),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build content types: %w", err)
	}
	if c.ContentTypesFile != "" {
		if err := types.LoadFile(c.ContentTypesFile); err != nil {
			return nil, fmt.Errorf("failed to load content types: %w", err)
		}
	}
	rt.Types = types

	backend, err := c.buildBackend(ctx, rt, logger)
	if err != nil {
		rt.closeAll()
		return nil, fmt.Errorf("failed to build backend: %w", err)
	}

	var sink publishedcontent.EventSink = publishedcontent.NewNoopEventSink()
	if c.LogEvents {
		sink = publishedcontent.NewLoggingEventSink(logger)
	}

	cache, err := publishedcontent.New(
		publishedcontent.WithBackend(backend),
		publishedcontent.WithContentTypes(types),
		publishedcontent.WithEventSink(sink),
		publishedcontent.WithLogger(logger),
		publishedcontent.WithMetrics(rt.Metrics),
	)
	if err != nil {
		rt.closeAll()
		return nil, err
	}
	picker.Bind(cache)
	rt.Cache = cache
	return rt, nil
}

func (r *Runtime) closeAll() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func (c *Config) buildBackend(ctx context.Context, rt *Runtime, logger *slog.Logger) (publishedcontent.Backend, error) {
	switch c.Backend {
	case BackendMemory:
		b := memory.New()
		if c.SeedFile != "" {
			if err := seed(ctx, b, c.SeedFile); err != nil {
				return nil, err
			}
		}
		rt.Memory = b
		return b, nil

	case BackendXMLFile:
		store, err := c.BuildStore(ctx)
		if err != nil {
			return nil, err
		}
		rt.Store = store
		return xmlfile.New(store,
			xmlfile.WithKey(c.XMLKey),
			xmlfile.WithPreviewKey(c.XMLPreviewKey),
			xmlfile.WithLogger(logger),
		), nil

	case BackendPostgres:
		pool, err := c.OpenPostgres(ctx)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		if c.AutoMigrate {
			if err := postgres.Migrate(pool, logger); err != nil {
				return nil, err
			}
		}
		rt.Postgres = postgres.New(pool, postgres.WithLogger(logger))
		rt.Writer = rt.Postgres
		return rt.Postgres, nil

	case BackendSQLite:
		b, err := sqlite.Open(c.SQLitePath, sqlite.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, b.Close)
		rt.Writer = b
		return b, nil
	}
	return nil, fmt.Errorf("unsupported backend: %s", c.Backend)
}

// seed publishes every node of an XML content cache file into the memory backend.
func seed(ctx context.Context, b *memory.Backend, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	nodes, err := xmlfile.Decode(f)
	if err != nil {
		return fmt.Errorf("failed to decode seed file: %w", err)
	}
	return b.SaveAndPublish(ctx, nodes...)
}

// BuildStore creates the document store named by StorageURL.
func (c *Config) BuildStore(ctx context.Context) (publishedcontent.DocumentStore, error) {
	loc, err := parseStorageURL(c.StorageURL)
	if err != nil {
		return nil, err
	}

	switch loc.Kind {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: loc.Path})
	case "s3":
		region := loc.Region
		if region == "" {
			region = c.S3DefaultRegion
		}
		return s3storage.New(ctx, s3storage.Config{
			Region:                 region,
			Bucket:                 loc.Bucket,
			Prefix:                 loc.Prefix,
			AccessKeyID:            c.S3AccessKeyID,
			SecretAccessKey:        c.S3SecretKey,
			Endpoint:               loc.Endpoint,
			UsePathStyle:           loc.PathStyle,
			CreateBucketIfNotExist: c.S3CreateBucket,
		})
	}
	return nil, fmt.Errorf("unsupported storage kind: %s", loc.Kind)
}

// OpenPostgres opens a pgx pool and sets search_path when a schema is configured.
func (c *Config) OpenPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	if c.DatabaseURL == "" {
		return nil, errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema := c.DBSchema; schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}
