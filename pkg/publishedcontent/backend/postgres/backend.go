// Package postgres is a content backend over PostgreSQL tables managed by golang-migrate.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/published-content/pkg/publishedcontent"
	"github.com/tendant/published-content/pkg/publishedcontent/backend/internal/nodeset"
)

const backendName = "postgres"

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Backend implements publishedcontent.Backend over the content_node and property_value tables.
// Every write bumps content_revision so Load can skip unchanged data.
type Backend struct {
	pool   *pgxpool.Pool
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

// New creates a PostgreSQL backend. Run Migrate before the first Load.
func New(pool *pgxpool.Pool, opts ...Option) *Backend {
	b := &Backend{pool: pool, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string { return backendName }

func (b *Backend) OwnsStructuralView() bool { return false }

func (b *Backend) NewProperty(pt *publishedcontent.PropertyType, contentID int, raw publishedcontent.RawValue, preview bool, scopes publishedcontent.Scopes) (publishedcontent.PublishedProperty, error) {
	return publishedcontent.NewProperty(pt, contentID, raw, preview,
		publishedcontent.WithScopes(scopes),
		publishedcontent.WithBackendName(backendName),
	)
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: referenced node not found: %w", operation, publishedcontent.ErrContentNotFound)
		case "23502": // not_null_violation
			return fmt.Errorf("%s: required field %s is missing", operation, pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("%s: table does not exist - database migration required", operation)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Load reads all nodes in one repeatable-read transaction. It returns ErrNotModified when
// content_revision did not move since the previous Load.
func (b *Backend) Load(ctx context.Context) (*publishedcontent.NodeSet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, handlePostgresError("load", err)
	}
	defer tx.Rollback(ctx)

	revision, err := readRevision(ctx, tx)
	if err != nil {
		return nil, err
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
	if err := tx.Commit(ctx); err != nil {
		return nil, handlePostgresError("load", err)
	}

	b.lastRevision, b.hasLoaded = revision, true
	set := asm.NodeSet(strconv.FormatInt(revision, 10))
	b.logger.DebugContext(ctx, "Loaded content from postgres",
		"published", len(set.Published), "draft", len(set.Draft), "revision", revision)
	return set, nil
}

func readRevision(ctx context.Context, db DBTX) (int64, error) {
	var revision int64
	err := db.QueryRow(ctx, `SELECT revision FROM content_revision WHERE id = 1`).Scan(&revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, handlePostgresError("read revision", err)
	}
	return revision, nil
}

func readNodes(ctx context.Context, db DBTX, asm *nodeset.Assembler) error {
	rows, err := db.Query(ctx, `
		SELECT id, state, key, parent_id, level, sort_order, name,
		       content_type_alias, path, create_date, update_date
		FROM content_node`)
	if err != nil {
		return handlePostgresError("read nodes", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			n     publishedcontent.Node
			state string
		)
		if err := rows.Scan(&n.ID, &state, &n.Key, &n.ParentID, &n.Level, &n.SortOrder, &n.Name,
			&n.ContentTypeAlias, &n.Path, &n.CreateDate, &n.UpdateDate); err != nil {
			return handlePostgresError("scan node", err)
		}
		if err := asm.AddNode(state, &n); err != nil {
			return err
		}
	}
	return rows.Err()
}

func readProperties(ctx context.Context, db DBTX, asm *nodeset.Assembler) error {
	rows, err := db.Query(ctx, `
		SELECT node_id, state, alias, value
		FROM property_value
		ORDER BY node_id, state, position`)
	if err != nil {
		return handlePostgresError("read properties", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id                  int
			state, alias, value string
		)
		if err := rows.Scan(&id, &state, &alias, &value); err != nil {
			return handlePostgresError("scan property", err)
		}
		asm.AddProperty(id, state, alias, value)
	}
	return rows.Err()
}

// SaveNode writes one version of a node and replaces its property values. Imports and the
// CLI use it; the cache itself never writes.
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

	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		if n.Key == uuid.Nil {
			key, err := existingKey(ctx, tx, n.ID)
			if err != nil {
				return handlePostgresError("save node", err)
			}
			n.Key = key
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO content_node (
				id, state, key, parent_id, level, sort_order, name,
				content_type_alias, path, create_date, update_date
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id, state) DO UPDATE SET
				key = EXCLUDED.key, parent_id = EXCLUDED.parent_id, level = EXCLUDED.level,
				sort_order = EXCLUDED.sort_order, name = EXCLUDED.name,
				content_type_alias = EXCLUDED.content_type_alias, path = EXCLUDED.path,
				update_date = EXCLUDED.update_date`,
			n.ID, state, n.Key, n.ParentID, n.Level, n.SortOrder, n.Name,
			n.ContentTypeAlias, n.Path, n.CreateDate, n.UpdateDate)
		if err != nil {
			return handlePostgresError("save node", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM property_value WHERE node_id = $1 AND state = $2`, n.ID, state); err != nil {
			return handlePostgresError("save node", err)
		}
		for i, p := range n.Properties {
			_, err := tx.Exec(ctx, `
				INSERT INTO property_value (node_id, state, alias, position, value)
				VALUES ($1, $2, $3, $4, $5)`,
				n.ID, state, p.Alias, i, p.Value)
			if err != nil {
				return handlePostgresError("save property "+p.Alias, err)
			}
		}
		return bumpRevision(ctx, tx)
	})
}

// existingKey returns the key stored for id in any state, or a new key for unknown content.
func existingKey(ctx context.Context, db DBTX, id int) (uuid.UUID, error) {
	var key uuid.UUID
	err := db.QueryRow(ctx, `SELECT key FROM content_node WHERE id = $1 LIMIT 1`, id).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.New(), nil
	}
	return key, err
}

// Publish copies the draft of a node over its published version.
func (b *Backend) Publish(ctx context.Context, id int) error {
	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO content_node (
				id, state, key, parent_id, level, sort_order, name,
				content_type_alias, path, create_date, update_date
			)
			SELECT id, 'published', key, parent_id, level, sort_order, name,
			       content_type_alias, path, create_date, update_date
			FROM content_node WHERE id = $1 AND state = 'draft'
			ON CONFLICT (id, state) DO UPDATE SET
				key = EXCLUDED.key, parent_id = EXCLUDED.parent_id, level = EXCLUDED.level,
				sort_order = EXCLUDED.sort_order, name = EXCLUDED.name,
				content_type_alias = EXCLUDED.content_type_alias, path = EXCLUDED.path,
				update_date = EXCLUDED.update_date`, id)
		if err != nil {
			return handlePostgresError("publish", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("publish %d: %w", id, publishedcontent.ErrContentNotFound)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM property_value WHERE node_id = $1 AND state = 'published'`, id); err != nil {
			return handlePostgresError("publish", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO property_value (node_id, state, alias, position, value)
			SELECT node_id, 'published', alias, position, value
			FROM property_value WHERE node_id = $1 AND state = 'draft'`, id); err != nil {
			return handlePostgresError("publish", err)
		}
		return bumpRevision(ctx, tx)
	})
}

// DeleteNode removes one version of a node.
func (b *Backend) DeleteNode(ctx context.Context, state string, id int) error {
	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM content_node WHERE id = $1 AND state = $2`, id, state)
		if err != nil {
			return handlePostgresError("delete node", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("delete %d: %w", id, publishedcontent.ErrContentNotFound)
		}
		return bumpRevision(ctx, tx)
	})
}

func bumpRevision(ctx context.Context, db DBTX) error {
	_, err := db.Exec(ctx, `
		INSERT INTO content_revision (id, revision) VALUES (1, 1)
		ON CONFLICT (id) DO UPDATE SET revision = content_revision.revision + 1`)
	if err != nil {
		return handlePostgresError("bump revision", err)
	}
	return nil
}
