package publishedcontent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// View is one logical owner's graph over a pinned snapshot, typically one HTTP request.
// It memoizes Content items and owns the request cache tier. A View must not be shared
// between goroutines; Close tears down the request tier.
type View struct {
	cache    *Cache
	snapshot *Snapshot
	preview  bool
	request  *Scope
	contents map[int]*Content
	closed   bool
}

func newView(c *Cache, snap *Snapshot, preview bool) *View {
	return &View{
		cache:    c,
		snapshot: snap,
		preview:  preview,
		request:  NewScope(TierRequest, WithScopeMetrics(c.metrics)),
		contents: make(map[int]*Content),
	}
}

// Snapshot returns the pinned snapshot.
func (v *View) Snapshot() *Snapshot { return v.snapshot }

// Preview reports whether the view reads draft data.
func (v *View) Preview() bool { return v.preview }

// RequestScope returns the request cache tier.
func (v *View) RequestScope() *Scope { return v.request }

func (v *View) scopes() Scopes {
	return Scopes{
		Process:  v.cache.process,
		Snapshot: v.snapshot.Scope(),
		Request:  v.request,
		Graph:    v,
	}
}

func (v *View) content(node *Node) (*Content, error) {
	if c, ok := v.contents[node.ID]; ok {
		return c, nil
	}
	c, err := newContent(v.cache.backend, v.cache.types, node, v.preview, v.scopes())
	if err != nil {
		return nil, err
	}
	v.contents[node.ID] = c
	return c, nil
}

func (v *View) contentList(nodes []*Node) ([]*Content, error) {
	out := make([]*Content, 0, len(nodes))
	for _, n := range nodes {
		c, err := v.content(n)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Content returns a content item by id.
func (v *View) Content(id int) (*Content, error) {
	if v.closed {
		return nil, ErrViewClosed
	}
	node, ok := v.snapshot.Node(id, v.preview)
	if !ok {
		return nil, fmt.Errorf("content %d: %w", id, ErrContentNotFound)
	}
	return v.content(node)
}

// ContentByKey returns a content item by its unique key.
func (v *View) ContentByKey(key uuid.UUID) (*Content, error) {
	if v.closed {
		return nil, ErrViewClosed
	}
	node, ok := v.snapshot.NodeByKey(key, v.preview)
	if !ok {
		return nil, fmt.Errorf("content %s: %w", key, ErrContentNotFound)
	}
	return v.content(node)
}

// ContentByRef resolves an untyped reference: an integer id, a numeric string, a key
// or a key string. A string that is neither names no content; other types are a misuse error.
func (v *View) ContentByRef(ref any) (*Content, error) {
	switch r := ref.(type) {
	case uuid.UUID:
		return v.ContentByKey(r)
	case string:
		if key, err := uuid.Parse(r); err == nil {
			return v.ContentByKey(key)
		}
		id, err := ParseContentID(r)
		if err != nil {
			return nil, fmt.Errorf("content %q: %w", r, ErrContentNotFound)
		}
		return v.Content(id)
	}
	id, err := ParseContentID(ref)
	if err != nil {
		return nil, err
	}
	return v.Content(id)
}

// ContentMany returns the items of the given ids in order, skipping ids that do not exist.
func (v *View) ContentMany(ids ...int) ([]*Content, error) {
	if v.closed {
		return nil, ErrViewClosed
	}
	out := make([]*Content, 0, len(ids))
	for _, id := range ids {
		node, ok := v.snapshot.Node(id, v.preview)
		if !ok {
			continue
		}
		c, err := v.content(node)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ContentAtRoot returns the top-level items ordered by sort order.
func (v *View) ContentAtRoot() ([]*Content, error) {
	if v.closed {
		return nil, ErrViewClosed
	}
	return v.contentList(v.snapshot.Roots(v.preview))
}

// Children returns the children of id ordered by sort order.
func (v *View) Children(id int) ([]*Content, error) {
	if v.closed {
		return nil, ErrViewClosed
	}
	if _, ok := v.snapshot.Node(id, v.preview); !ok {
		return nil, fmt.Errorf("content %d: %w", id, ErrContentNotFound)
	}
	return v.contentList(v.snapshot.Children(id, v.preview))
}

// Parent returns the parent of id. A top-level item has no parent and yields ErrContentNotFound.
func (v *View) Parent(id int) (*Content, error) {
	if v.closed {
		return nil, ErrViewClosed
	}
	node, ok := v.snapshot.Node(id, v.preview)
	if !ok {
		return nil, fmt.Errorf("content %d: %w", id, ErrContentNotFound)
	}
	parent, ok := v.snapshot.Node(node.ParentID, v.preview)
	if !ok || parent.ID == node.ID {
		return nil, fmt.Errorf("parent of content %d: %w", id, ErrContentNotFound)
	}
	return v.content(parent)
}

// Property returns a property of a content item. An alias the item does not carry yields an
// empty property of the fallback type, so a missing raw value never surfaces as an error.
func (v *View) Property(id int, alias string) (PublishedProperty, error) {
	c, err := v.Content(id)
	if err != nil {
		return nil, err
	}
	if p, ok := c.Property(alias); ok {
		return p, nil
	}
	pt := v.cache.types.Fallback(alias)
	if pt == nil {
		return nil, &InvalidArgumentError{Op: "property", Arg: alias}
	}
	return v.cache.backend.NewProperty(pt, id, Missing, v.preview, v.scopes())
}

// Close releases the view's content graph and tears down its request tier.
// Later calls do nothing.
func (v *View) Close() {
	if v.closed {
		return
	}
	v.closed = true
	v.contents = nil
	v.request.Close()
	v.cache.hooks.executeViewClosed(context.Background(), v)
}

type viewContextKey struct{}

// NewContext returns a copy of ctx carrying v.
func NewContext(ctx context.Context, v *View) context.Context {
	return context.WithValue(ctx, viewContextKey{}, v)
}

// FromContext returns the view carried by ctx.
func FromContext(ctx context.Context) (*View, bool) {
	v, ok := ctx.Value(viewContextKey{}).(*View)
	return v, ok && v != nil
}
