// Package sqlite is a content backend over an SQLite file, using the pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tendant/published-content/pkg/publishedcontent"
	"github.com/tendant/published-content/pkg/publishedcontent/backend/internal/nodeset"
)

const backendName = "sqlite"

// currentSchemaVersion is the latest schema version kept in user_version.
const currentSchemaVersion = 1

// Backend implements publishedcontent.Backend over an SQLite database.
type Backend struct {
	db     *sql.DB
	logger *slog.Logger

	mu           sync.Mutex
	lastRevision int64
	hasLoaded    bool
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// Open opens or creates the database file and applies the schema.
func Open(path string, opts ...Option) (*Backend, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas in the connection string apply to all connections
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	b := &Backend{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("failed to get user_version: %w", err)
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS content_node (
		  id                 INTEGER NOT NULL,
		  state              TEXT    NOT NULL CHECK (state IN ('published', 'draft')),
		  key                TEXT    NOT NULL,
		  parent_id          INTEGER NOT NULL DEFAULT -1,
		  level              INTEGER NOT NULL DEFAULT 1,
		  sort_order         INTEGER NOT NULL DEFAULT 0,
		  name               TEXT    NOT NULL DEFAULT '',
		  content_type_alias TEXT    NOT NULL,
		  path               TEXT    NOT NULL DEFAULT '',
		  create_date        INTEGER NOT NULL,
		  update_date        INTEGER NOT NULL,
		  PRIMARY KEY (id, state)
		);

		CREATE INDEX IF NOT EXISTS idx_content_node_parent ON content_node(parent_id, state);

		CREATE TABLE IF NOT EXISTS property_value (
		  node_id  INTEGER NOT NULL,
		  state    TEXT    NOT NULL,
		  alias    TEXT    NOT NULL,
		  position INTEGER NOT NULL,
		  value    TEXT    NOT NULL,
		  PRIMARY KEY (node_id, state, alias),
		  FOREIGN KEY (node_id, state) REFERENCES content_node(id, state) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS content_revision (
		  id       INTEGER PRIMARY KEY CHECK (id = 1),
		  revision INTEGER NOT NULL
		);

		INSERT OR IGNORE INTO content_revision (id, revision) VALUES (1, 0);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("failed to set user_version: %w", err)
		}
	}
	return nil
}

func (b *Backend) Name() string { return backendName }

func (b *Backend) OwnsStructuralView() bool { return false }

func (b *Backend) NewProperty(pt *publishedcontent.PropertyType, contentID int, raw publishedcontent.RawValue, preview bool, scopes publishedcontent.Scopes) (publishedcontent.PublishedProperty, error) {
	return publishedcontent.NewProperty(pt, contentID, raw, preview,
		publishedcontent.WithScopes(scopes),
		publishedcontent.WithBackendName(backendName),
	)
}

// Load reads all nodes in one transaction. It returns ErrNotModified when content_revision
// did not move since the previous Load.
func (b *Backend) Load(ctx context.Context) (*publishedcontent.NodeSet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	defer tx.Rollback()

	var revision int64
	if err := tx.QueryRowContext(ctx, `SELECT revision FROM content_revision WHERE id = 1`).Scan(&revision); err != nil {
		return nil, fmt.Errorf("read revision: %w", err)
	}
	if b.hasLoaded && revision == b.lastRevision {
		return nil, publishedcontent.ErrNotModified
	}

	asm := nodeset.NewAssembler()
	if err := readNodes(ctx, tx, asm); err != nil {
		return nil, err
	}
	if err := readProperties(ctx, tx, asm); err != nil {
		return nil, err
	}

	b.lastRevision, b.hasLoaded = revision, true
	set := asm.NodeSet(strconv.FormatInt(revision, 10))
	b.logger.DebugContext(ctx, "Loaded content from sqlite",
		"published", len(set.Published), "draft", len(set.Draft), "revision", revision)
	return set, nil
}

func readNodes(ctx context.Context, tx *sql.Tx, asm *nodeset.Assembler) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, state, key, parent_id, level, sort_order, name,
		       content_type_alias, path, create_date, update_date
		FROM content_node`)
	if err != nil {
		return fmt.Errorf("read nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			n                publishedcontent.Node
			state, key       string
			created, updated int64
		)
		if err := rows.Scan(&n.ID, &state, &key, &n.ParentID, &n.Level, &n.SortOrder, &n.Name,
			&n.ContentTypeAlias, &n.Path, &created, &updated); err != nil {
			return fmt.Errorf("scan node: %w", err)
		}
		if n.Key, err = uuid.Parse(key); err != nil {
			return fmt.Errorf("node %d: invalid key %q", n.ID, key)
		}
		n.CreateDate = time.UnixMilli(created).UTC()
		n.UpdateDate = time.UnixMilli(updated).UTC()
		if err := asm.AddNode(state, &n); err != nil {
			return err
		}
	}
	return rows.Err()
}

func readProperties(ctx context.Context, tx *sql.Tx, asm *nodeset.Assembler) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT node_id, state, alias, value
		FROM property_value
		ORDER BY node_id, state, position`)
	if err != nil {
		return fmt.Errorf("read properties: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id                  int
			state, alias, value string
		)
		if err := rows.Scan(&id, &state, &alias, &value); err != nil {
			return fmt.Errorf("scan property: %w", err)
		}
		asm.AddProperty(id, state, alias, value)
	}
	return rows.Err()
}

func (b *Backend) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE content_revision SET revision = revision + 1 WHERE id = 1`); err != nil {
		tx.Rollback()
		return fmt.Errorf("bump revision: %w", err)
	}
	return tx.Commit()
}

// SaveNode writes one version of a node and replaces its property values.
func (b *Backend) SaveNode(ctx context.Context, state string, node *publishedcontent.Node) error {
	if node == nil {
		return &publishedcontent.InvalidArgumentError{Op: "save node", Arg: "node"}
	}
	if !nodeset.ValidState(state) {
		return &publishedcontent.InvalidArgumentError{Op: "save node", Arg: "state " + state}
	}

	n := node.Clone()
	now := time.Now().UTC()
	if n.CreateDate.IsZero() {
		n.CreateDate = now
	}
	if n.UpdateDate.IsZero() {
		n.UpdateDate = now
	}

	return b.inTx(ctx, func(tx *sql.Tx) error {
		if n.Key == uuid.Nil {
			key, err := existingKey(ctx, tx, n.ID)
			if err != nil {
				return fmt.Errorf("save node %d: %w", n.ID, err)
			}
			n.Key = key
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO content_node (
				id, state, key, parent_id, level, sort_order, name,
				content_type_alias, path, create_date, update_date
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id, state) DO UPDATE SET
				key = excluded.key, parent_id = excluded.parent_id, level = excluded.level,
				sort_order = excluded.sort_order, name = excluded.name,
				content_type_alias = excluded.content_type_alias, path = excluded.path,
				update_date = excluded.update_date`,
			n.ID, state, n.Key.String(), n.ParentID, n.Level, n.SortOrder, n.Name,
			n.ContentTypeAlias, n.Path, n.CreateDate.UnixMilli(), n.UpdateDate.UnixMilli())
		if err != nil {
			return fmt.Errorf("save node %d: %w", n.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM property_value WHERE node_id = ? AND state = ?`, n.ID, state); err != nil {
			return fmt.Errorf("save node %d: %w", n.ID, err)
		}
		for i, p := range n.Properties {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO property_value (node_id, state, alias, position, value)
				VALUES (?, ?, ?, ?, ?)`, n.ID, state, p.Alias, i, p.Value); err != nil {
				return fmt.Errorf("save property %s of %d: %w", p.Alias, n.ID, err)
			}
		}
		return nil
	})
}

// existingKey returns the key stored for id in any state, or a new key for unknown content.
func existingKey(ctx context.Context, tx *sql.Tx, id int) (uuid.UUID, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT key FROM content_node WHERE id = ? LIMIT 1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.New(), nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(raw)
}

// Publish copies the draft of a node over its published version.
func (b *Backend) Publish(ctx context.Context, id int) error {
	return b.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO content_node (
				id, state, key, parent_id, level, sort_order, name,
				content_type_alias, path, create_date, update_date
			)
			SELECT id, 'published', key, parent_id, level, sort_order, name,
			       content_type_alias, path, create_date, update_date
			FROM content_node WHERE id = ? AND state = 'draft'
			ON CONFLICT (id, state) DO UPDATE SET
				key = excluded.key, parent_id = excluded.parent_id, level = excluded.level,
				sort_order = excluded.sort_order, name = excluded.name,
				content_type_alias = excluded.content_type_alias, path = excluded.path,
				update_date = excluded.update_date`, id)
		if err != nil {
			return fmt.Errorf("publish %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("publish %d: %w", id, publishedcontent.ErrContentNotFound)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM property_value WHERE node_id = ? AND state = 'published'`, id); err != nil {
			return fmt.Errorf("publish %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO property_value (node_id, state, alias, position, value)
			SELECT node_id, 'published', alias, position, value
			FROM property_value WHERE node_id = ? AND state = 'draft'`, id); err != nil {
			return fmt.Errorf("publish %d: %w", id, err)
		}
		return nil
	})
}

// DeleteNode removes one version of a node.
func (b *Backend) DeleteNode(ctx context.Context, state string, id int) error {
	return b.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM content_node WHERE id = ? AND state = ?`, id, state)
		if err != nil {
			return fmt.Errorf("delete %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("delete %d: %w", id, publishedcontent.ErrContentNotFound)
		}
		return nil
	})
}
