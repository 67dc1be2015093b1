package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/tendant/published-content/pkg/publishedcontent"
	"github.com/tendant/published-content/pkg/publishedcontent/backend/postgres"
	"github.com/tendant/published-content/pkg/publishedcontent/backend/sqlite"
	"github.com/tendant/published-content/pkg/publishedcontent/backend/xmlfile"
	"github.com/tendant/published-content/pkg/publishedcontent/config"
	"github.com/tendant/published-content/pkg/publishedcontent/warmup"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(out io.Writer) *cli.App {
	app := &cli.App{
		Name:    "pcctl",
		Usage:   "Inspect and maintain the published content cache",
		Version: Version,
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file"},
			&cli.StringFlag{Name: "backend", Aliases: []string{"b"}, Usage: "Content backend: memory|xmlfile|postgres|sqlite"},
			&cli.StringFlag{Name: "seed", Usage: "XML content cache file published into the memory backend"},
			&cli.StringFlag{Name: "sqlite", Usage: "SQLite database path (selects the sqlite backend)"},
			&cli.StringFlag{Name: "database-url", Usage: "Postgres connection URL (selects the postgres backend)"},
			&cli.StringFlag{Name: "db-schema", Usage: "Postgres schema"},
			&cli.StringFlag{Name: "storage-url", Usage: "Document store of the XML backend: memory://, file://dir or s3://bucket/prefix"},
			&cli.StringFlag{Name: "xml-key", Usage: "Key of the published XML document"},
			&cli.StringFlag{Name: "xml-preview-key", Usage: "Key of the preview XML document"},
			&cli.StringFlag{Name: "types", Aliases: []string{"t"}, Usage: "YAML content type definitions"},
		},
		Commands: []*cli.Command{
			getCmd(),
			rawCmd(),
			treeCmd(),
			migrateCmd(),
			exportCmd(),
			importCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// loadConfig applies, in order: the YAML file, the environment and the command line flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var opts []config.Option
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithFile(path))
	}
	opts = append(opts, config.WithEnv())

	if c.IsSet("backend") {
		opts = append(opts, config.WithBackend(c.String("backend")))
	}
	if c.IsSet("seed") {
		opts = append(opts, config.WithSeedFile(c.String("seed")))
	}
	if c.IsSet("sqlite") {
		opts = append(opts, config.WithSQLite(c.String("sqlite")))
	}
	if c.IsSet("database-url") {
		opts = append(opts, config.WithDatabase(c.String("database-url"), c.String("db-schema")))
	}
	if c.IsSet("storage-url") {
		opts = append(opts, config.WithXMLDocument(c.String("storage-url"), c.String("xml-key"), c.String("xml-preview-key")))
	}
	if c.IsSet("types") {
		opts = append(opts, config.WithContentTypesFile(c.String("types")))
	}
	return config.Load(opts...)
}

// openRuntime builds the cache and loads the first snapshot.
func openRuntime(c *cli.Context) (*config.Runtime, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	rt, err := cfg.BuildCache(c.Context, nil)
	if err != nil {
		return nil, err
	}
	if _, err := rt.Cache.Reload(c.Context); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func intArg(c *cli.Context, i int, name string) (int, error) {
	s := c.Args().Get(i)
	if s == "" {
		return 0, cli.Exit(fmt.Sprintf("missing %s argument", name), 1)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, cli.Exit(fmt.Sprintf("invalid %s %q", name, s), 1)
	}
	return n, nil
}

func previewFlag() cli.Flag {
	return &cli.BoolFlag{Name: "preview", Aliases: []string{"p"}, Usage: "Read draft content"}
}

type contentOutput struct {
	ID          int            `json:"id"`
	Key         string         `json:"key,omitempty"`
	ParentID    int            `json:"parent_id"`
	Level       int            `json:"level"`
	Name        string         `json:"name"`
	ContentType string         `json:"content_type"`
	Path        string         `json:"path"`
	Properties  map[string]any `json:"properties"`
}

// getCmd creates the get command.
func getCmd() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print a content item with its converted property values",
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{previewFlag()},
		Action: func(c *cli.Context) error {
			id, err := intArg(c, 0, "id")
			if err != nil {
				return err
			}
			rt, err := openRuntime(c)
			if err != nil {
				return outputError(err)
			}
			defer rt.Close()

			view, err := rt.Cache.OpenView(c.Bool("preview"))
			if err != nil {
				return outputError(err)
			}
			defer view.Close()

			content, err := view.Content(id)
			if err != nil {
				return outputError(err)
			}
			out := contentOutput{
				ID:          content.ID(),
				ParentID:    content.ParentID(),
				Level:       content.Level(),
				Name:        content.Name(),
				ContentType: content.ContentTypeAlias(),
				Path:        content.Path(),
				Properties:  make(map[string]any),
			}
			if k := content.Key(); k != uuid.Nil {
				out.Key = k.String()
			}
			for _, p := range content.Properties() {
				out.Properties[p.Alias()] = p.Value()
			}
			return outputJSON(c.App.Writer, out)
		},
	}
}

// rawCmd creates the raw command.
func rawCmd() *cli.Command {
	return &cli.Command{
		Name:      "raw",
		Usage:     "Print the raw stored value of a property",
		ArgsUsage: "<id> <alias>",
		Flags:     []cli.Flag{previewFlag()},
		Action: func(c *cli.Context) error {
			id, err := intArg(c, 0, "id")
			if err != nil {
				return err
			}
			alias := c.Args().Get(1)
			if alias == "" {
				return cli.Exit("missing alias argument", 1)
			}
			rt, err := openRuntime(c)
			if err != nil {
				return outputError(err)
			}
			defer rt.Close()

			value, err := rt.Cache.GetRawValue(c.Context, id, alias, c.Bool("preview"))
			if err != nil {
				return outputError(err)
			}
			_, err = fmt.Fprintln(c.App.Writer, value)
			return err
		},
	}
}

// treeCmd creates the tree command.
func treeCmd() *cli.Command {
	return &cli.Command{
		Name:  "tree",
		Usage: "Print the content tree",
		Flags: []cli.Flag{
			previewFlag(),
			&cli.StringSliceFlag{Name: "type", Usage: "Only print these content types"},
		},
		Action: func(c *cli.Context) error {
			rt, err := openRuntime(c)
			if err != nil {
				return outputError(err)
			}
			defer rt.Close()

			view, err := rt.Cache.OpenView(c.Bool("preview"))
			if err != nil {
				return outputError(err)
			}
			defer view.Close()

			w := bufio.NewWriter(c.App.Writer)
			_, err = warmup.New(view, nil).Scan(c.Context, warmup.ScanOptions{
				ContentTypes: c.StringSlice("type"),
				Processor:    &warmup.Printer{W: w},
			})
			if err != nil {
				return outputError(err)
			}
			return w.Flush()
		},
	}
}

// migrateCmd creates the migrate command.
func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the database schema of the configured SQL backend",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return outputError(err)
			}
			switch cfg.Backend {
			case config.BackendPostgres:
				pool, err := cfg.OpenPostgres(c.Context)
				if err != nil {
					return outputError(err)
				}
				defer pool.Close()
				if err := postgres.Migrate(pool, nil); err != nil {
					return outputError(err)
				}
			case config.BackendSQLite:
				// opening migrates
				b, err := sqlite.Open(cfg.SQLitePath)
				if err != nil {
					return outputError(err)
				}
				if err := b.Close(); err != nil {
					return outputError(err)
				}
			default:
				return cli.Exit(fmt.Sprintf("backend %s has no database schema", cfg.Backend), 1)
			}
			_, err = fmt.Fprintf(c.App.Writer, "%s schema is up to date\n", cfg.Backend)
			return err
		},
	}
}

// exportCmd creates the export-xml command.
func exportCmd() *cli.Command {
	return &cli.Command{
		Name:  "export-xml",
		Usage: "Write the current snapshot as an XML content cache document",
		Flags: []cli.Flag{
			previewFlag(),
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file (default stdout)"},
		},
		Action: func(c *cli.Context) error {
			rt, err := openRuntime(c)
			if err != nil {
				return outputError(err)
			}
			defer rt.Close()

			snap := rt.Cache.Snapshot()
			w := c.App.Writer
			if path := c.String("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return outputError(err)
				}
				defer f.Close()
				w = f
			}
			if err := xmlfile.Encode(w, snap.Nodes(c.Bool("preview"))); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// importCmd creates the import-xml command.
func importCmd() *cli.Command {
	return &cli.Command{
		Name:      "import-xml",
		Usage:     "Store the nodes of an XML content cache document in the configured backend",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "draft", Usage: "Save as drafts without publishing (SQL backends)"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return cli.Exit("missing file argument", 1)
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return outputError(err)
			}
			rt, err := cfg.BuildCache(c.Context, nil)
			if err != nil {
				return outputError(err)
			}
			defer rt.Close()

			n, err := importFile(c.Context, cfg, rt, path, c.Bool("draft"))
			if err != nil {
				return outputError(err)
			}
			_, err = fmt.Fprintf(c.App.Writer, "imported %d nodes into %s\n", n, cfg.Backend)
			return err
		},
	}
}

func importFile(ctx context.Context, cfg *config.Config, rt *config.Runtime, path string, draft bool) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	nodes, err := xmlfile.Decode(f)
	if err != nil {
		return 0, err
	}

	switch {
	case rt.Writer != nil:
		for _, n := range nodes {
			if err := rt.Writer.SaveNode(ctx, publishedcontent.NodeStateDraft, n); err != nil {
				return 0, err
			}
			if draft {
				continue
			}
			if err := rt.Writer.Publish(ctx, n.ID); err != nil {
				return 0, err
			}
		}
	case rt.Store != nil:
		set := &publishedcontent.NodeSet{Published: nodes}
		if err := xmlfile.New(rt.Store, xmlfile.WithKey(cfg.XMLKey)).Save(ctx, set); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("backend %s cannot be imported into", cfg.Backend)
	}
	return len(nodes), nil
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var rawErr *publishedcontent.RawValueError
	if errors.As(err, &rawErr) {
		return cli.Exit(fmt.Sprintf("no raw value %q on content %d", rawErr.Alias, rawErr.ContentID), 1)
	}
	return cli.Exit(err.Error(), 1)
}
