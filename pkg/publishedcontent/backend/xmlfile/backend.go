// Package xmlfile is a content backend reading the XML content cache document from a
// DocumentStore (memory, local files or S3).
package xmlfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

const (
	backendName = "xmlfile"

	// DefaultKey is the document key of the published content cache.
	DefaultKey = "umbraco.config"
)

// Backend implements publishedcontent.Backend over an XML document.
type Backend struct {
	store      publishedcontent.DocumentStore
	key        string
	previewKey string
	logger     *slog.Logger

	mu          sync.Mutex
	lastVersion string
}

// Option configures a Backend.
type Option func(*Backend)

// WithKey sets the key of the published document.
func WithKey(key string) Option {
	return func(b *Backend) {
		b.key = key
	}
}

// WithPreviewKey sets the key of the preview document. Its nodes overlay the published
// nodes when previewing. A missing preview document means no drafts.
func WithPreviewKey(key string) Option {
	return func(b *Backend) {
		b.previewKey = key
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New creates an XML backend reading from store.
func New(store publishedcontent.DocumentStore, opts ...Option) *Backend {
	b := &Backend{
		store:  store,
		key:    DefaultKey,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string { return backendName }

// OwnsStructuralView is true: raw values come from XML elements.
func (b *Backend) OwnsStructuralView() bool { return true }

// NewProperty creates an XML property. Scopes are ignored; the property caches in itself only.
func (b *Backend) NewProperty(pt *publishedcontent.PropertyType, contentID int, raw publishedcontent.RawValue, preview bool, _ publishedcontent.Scopes) (publishedcontent.PublishedProperty, error) {
	if !raw.Found {
		return NewEmptyProperty(pt, preview)
	}
	return NewPropertyFromString(pt, preview, raw.Value)
}

// Load reads the published and preview documents. It returns ErrNotModified when neither
// document changed since the previous successful load.
func (b *Backend) Load(ctx context.Context) (*publishedcontent.NodeSet, error) {
	meta, err := b.store.Stat(ctx, b.key)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", b.key, err)
	}
	version := meta.Version()

	var previewVersion string
	if b.previewKey != "" {
		pm, err := b.store.Stat(ctx, b.previewKey)
		switch {
		case err == nil:
			previewVersion = pm.Version()
		case errors.Is(err, publishedcontent.ErrObjectNotFound):
		default:
			return nil, fmt.Errorf("stat %s: %w", b.previewKey, err)
		}
	}
	combined := version + "|" + previewVersion

	b.mu.Lock()
	defer b.mu.Unlock()

	if combined == b.lastVersion {
		return nil, publishedcontent.ErrNotModified
	}

	published, err := b.read(ctx, b.key)
	if err != nil {
		return nil, err
	}
	set := &publishedcontent.NodeSet{Published: published, Version: combined}
	if previewVersion != "" {
		if set.Draft, err = b.read(ctx, b.previewKey); err != nil {
			return nil, err
		}
	}

	b.lastVersion = combined
	b.logger.DebugContext(ctx, "Loaded XML content cache",
		"key", b.key, "published", len(set.Published), "draft", len(set.Draft), "version", combined)
	return set, nil
}

func (b *Backend) read(ctx context.Context, key string) ([]*publishedcontent.Node, error) {
	rc, err := b.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer rc.Close()

	nodes, err := Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return nodes, nil
}

// Save writes a node set as the published document and, when a preview key is configured,
// the preview document.
func (b *Backend) Save(ctx context.Context, set *publishedcontent.NodeSet) error {
	if err := b.write(ctx, b.key, set.Published); err != nil {
		return err
	}
	if b.previewKey != "" && len(set.Draft) > 0 {
		return b.write(ctx, b.previewKey, set.Draft)
	}
	return nil
}

func (b *Backend) write(ctx context.Context, key string, nodes []*publishedcontent.Node) error {
	var buf bytes.Buffer
	if err := Encode(&buf, nodes); err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := b.store.Put(ctx, key, &buf); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
