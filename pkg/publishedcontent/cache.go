package publishedcontent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Cache owns the current snapshot of a backend and the process cache tier.
// It is safe for concurrent use; the content graphs it hands out through views are not.
type Cache struct {
	backend   Backend
	types     ContentTypes
	process   *Scope
	eventSink EventSink
	hooks     *Hooks
	logger    *slog.Logger
	metrics   Metrics

	current atomic.Pointer[Snapshot]
	closed  atomic.Bool
	reloads atomic.Int64

	reloadMu sync.Mutex
}

// Option represents a functional option for configuring the cache
type Option func(*Cache)

// WithBackend sets the backend supplying raw content
func WithBackend(backend Backend) Option {
	return func(c *Cache) {
		c.backend = backend
	}
}

// WithContentTypes sets the content type registry
func WithContentTypes(types ContentTypes) Option {
	return func(c *Cache) {
		c.types = types
	}
}

// WithProcessScope shares an existing process tier, e.g. between caches of one application
func WithProcessScope(scope *Scope) Option {
	return func(c *Cache) {
		c.process = scope
	}
}

// WithEventSink sets the event sink
func WithEventSink(sink EventSink) Option {
	return func(c *Cache) {
		c.eventSink = sink
	}
}

// WithHooks sets lifecycle hooks
func WithHooks(hooks *Hooks) Option {
	return func(c *Cache) {
		c.hooks = hooks
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithMetrics reports tier hits and misses to m
func WithMetrics(m Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New creates a cache. No snapshot is loaded until Reload is called.
func New(options ...Option) (*Cache, error) {
	c := &Cache{}
	for _, option := range options {
		option(c)
	}

	if c.backend == nil {
		return nil, errors.New("backend is required")
	}
	if c.types == nil {
		return nil, errors.New("content types are required")
	}
	if c.eventSink == nil {
		c.eventSink = NewNoopEventSink()
	}
	if c.hooks == nil {
		c.hooks = &Hooks{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = NoopMetrics{}
	}
	if c.process == nil {
		c.process = NewScope(TierProcess, WithScopeMetrics(c.metrics))
	}

	return c, nil
}

// Backend returns the backend supplying raw content.
func (c *Cache) Backend() Backend { return c.backend }

// ContentTypes returns the content type registry.
func (c *Cache) ContentTypes() ContentTypes { return c.types }

// ProcessScope returns the process cache tier.
func (c *Cache) ProcessScope() *Scope { return c.process }

// Snapshot returns the current snapshot, or nil before the first successful reload.
func (c *Cache) Snapshot() *Snapshot {
	return c.current.Load()
}

// ReloadResult describes one Reload call.
type ReloadResult struct {
	Generation string `json:"generation"`
	Changed    []int  `json:"changed"`
	Skipped    bool   `json:"skipped"`
}

// Reload loads the backend and makes the new snapshot current. Views opened before the reload
// keep reading their own snapshot. Process tier entries of changed content are dropped and the
// replaced snapshot's tier is torn down. When the backend reports ErrNotModified nothing changes.
func (c *Cache) Reload(ctx context.Context) (*ReloadResult, error) {
	if c.closed.Load() {
		return nil, ErrCacheClosed
	}

	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	if err := c.hooks.executeBeforeReload(ctx, c.backend.Name()); err != nil {
		c.hooks.executeOnError(ctx, "reload", err)
		return nil, err
	}

	set, err := c.backend.Load(ctx)
	if errors.Is(err, ErrNotModified) && c.Snapshot() != nil {
		c.logger.DebugContext(ctx, "Backend not modified, reload skipped", "backend", c.backend.Name())
		return &ReloadResult{Generation: c.Snapshot().Generation().String(), Skipped: true}, nil
	}
	if err != nil {
		reloadErr := &ReloadError{Backend: c.backend.Name(), Err: err}
		c.logger.ErrorContext(ctx, "Failed to reload snapshot", "backend", c.backend.Name(), "err", err)
		c.hooks.executeOnError(ctx, "reload", reloadErr)
		return nil, reloadErr
	}

	snap := NewSnapshot(set, WithScopeMetrics(c.metrics))
	old := c.current.Swap(snap)
	c.reloads.Add(1)

	var changed []int
	if old != nil {
		changed = changedIDs(old, snap)
		// retire the old tier first so views still reading it stop storing into the process tier
		old.Scope().Close()
		if n := c.process.InvalidateContent(changed...); n > 0 {
			if err := c.eventSink.ContentInvalidated(ctx, changed); err != nil {
				c.logger.WarnContext(ctx, "Failed to fire content invalidated event", "err", err)
			}
		}
		if err := c.eventSink.SnapshotReleased(ctx, old.Generation()); err != nil {
			c.logger.WarnContext(ctx, "Failed to fire snapshot released event", "err", err)
		}
	}

	if err := c.eventSink.SnapshotLoaded(ctx, snap, changed); err != nil {
		c.logger.WarnContext(ctx, "Failed to fire snapshot loaded event", "err", err)
	}
	if err := c.hooks.executeAfterReload(ctx, snap, changed); err != nil {
		c.logger.WarnContext(ctx, "After reload hook failed", "err", err)
		c.hooks.executeOnError(ctx, "after reload", err)
	}

	return &ReloadResult{Generation: snap.Generation().String(), Changed: changed}, nil
}

func (c *Cache) snapshot() (*Snapshot, error) {
	if c.closed.Load() {
		return nil, ErrCacheClosed
	}
	snap := c.current.Load()
	if snap == nil {
		return nil, ErrSnapshotNotLoaded
	}
	return snap, nil
}

// GetRawValue returns the raw value of a property from the current snapshot.
// A missing value is reported as a *RawValueError wrapping ErrRawValueNotFound.
func (c *Cache) GetRawValue(ctx context.Context, contentID int, alias string, preview bool) (string, error) {
	snap, err := c.snapshot()
	if err != nil {
		return "", err
	}
	return snap.GetRawValue(contentID, alias, preview)
}

// OpenView pins the current snapshot and opens a request tier for one logical owner.
// The caller must Close the view.
func (c *Cache) OpenView(preview bool) (*View, error) {
	snap, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	return newView(c, snap, preview), nil
}

// Invalidate drops the cached values of the given content from the process and snapshot tiers.
// Property instances that already computed their value keep it.
func (c *Cache) Invalidate(ctx context.Context, ids ...int) int {
	n := c.process.InvalidateContent(ids...)
	if snap := c.current.Load(); snap != nil {
		n += snap.Scope().InvalidateContent(ids...)
	}
	if n > 0 {
		if err := c.eventSink.ContentInvalidated(ctx, ids); err != nil {
			c.logger.WarnContext(ctx, "Failed to fire content invalidated event", "err", err)
		}
	}
	return n
}

// InvalidateAll clears the process and snapshot tiers.
func (c *Cache) InvalidateAll(ctx context.Context) int {
	n := c.process.Clear()
	if snap := c.current.Load(); snap != nil {
		n += snap.Scope().Clear()
	}
	c.logger.InfoContext(ctx, "Cache tiers cleared", "entries", n)
	return n
}

// ResolveContent builds a content item from the current snapshot outside of any view.
// Its properties cache through the process and snapshot tiers only.
func (c *Cache) ResolveContent(id int, preview bool) (*Content, error) {
	snap, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	node, ok := snap.Node(id, preview)
	if !ok {
		return nil, fmt.Errorf("content %d: %w", id, ErrContentNotFound)
	}
	return newContent(c.backend, c.types, node, preview, Scopes{Process: c.process, Snapshot: snap.Scope()})
}

// ResolveContentByKey is ResolveContent for a content key.
func (c *Cache) ResolveContentByKey(key uuid.UUID, preview bool) (*Content, error) {
	snap, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	node, ok := snap.NodeByKey(key, preview)
	if !ok {
		return nil, fmt.Errorf("content %s: %w", key, ErrContentNotFound)
	}
	return newContent(c.backend, c.types, node, preview, Scopes{Process: c.process, Snapshot: snap.Scope()})
}

// Stats is a point-in-time description of the cache.
type Stats struct {
	Backend         string               `json:"backend"`
	Generation      string               `json:"generation,omitempty"`
	Version         string               `json:"version,omitempty"`
	LoadedAt        time.Time            `json:"loaded_at,omitempty"`
	Published       int                  `json:"published"`
	Preview         int                  `json:"preview"`
	Reloads         int64                `json:"reloads"`
	ProcessEntries  int                  `json:"process_entries"`
	SnapshotEntries int                  `json:"snapshot_entries"`
	Tiers           map[string]TierStats `json:"tiers,omitempty"`
}

// Stats reports the current state of the cache.
func (c *Cache) Stats() Stats {
	st := Stats{
		Backend:        c.backend.Name(),
		Reloads:        c.reloads.Load(),
		ProcessEntries: c.process.Len(),
	}
	if snap := c.current.Load(); snap != nil {
		st.Generation = snap.Generation().String()
		st.Version = snap.Version()
		st.LoadedAt = snap.LoadedAt()
		st.Published = snap.Len(false)
		st.Preview = snap.Len(true)
		st.SnapshotEntries = snap.Scope().Len()
	}
	if counting, ok := c.metrics.(*CountingMetrics); ok {
		st.Tiers = counting.Snapshot()
	}
	return st
}

// Close tears down the process tier and the current snapshot tier.
func (c *Cache) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if snap := c.current.Load(); snap != nil {
		snap.Scope().Close()
	}
	c.process.Close()
	return nil
}
