// Package memory is an in-memory content backend for tests, examples and imports.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

// Backend implements publishedcontent.Backend over in-memory node maps.
// Save writes the draft of a node; Publish copies the draft to the published set.
type Backend struct {
	mu        sync.RWMutex
	drafts    map[int]*publishedcontent.Node
	published map[int]*publishedcontent.Node
	version   int64
	loaded    int64
	hasLoaded bool
}

// New creates an empty in-memory backend
func New() *Backend {
	return &Backend{
		drafts:    make(map[int]*publishedcontent.Node),
		published: make(map[int]*publishedcontent.Node),
	}
}

func (b *Backend) Name() string { return "memory" }

func (b *Backend) OwnsStructuralView() bool { return false }

func (b *Backend) NewProperty(pt *publishedcontent.PropertyType, contentID int, raw publishedcontent.RawValue, preview bool, scopes publishedcontent.Scopes) (publishedcontent.PublishedProperty, error) {
	return publishedcontent.NewProperty(pt, contentID, raw, preview,
		publishedcontent.WithScopes(scopes),
		publishedcontent.WithBackendName(b.Name()),
	)
}

// Load returns copies of the published nodes and of the drafts that differ from them.
// It returns ErrNotModified when nothing changed since the previous Load.
func (b *Backend) Load(ctx context.Context) (*publishedcontent.NodeSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hasLoaded && b.loaded == b.version {
		return nil, publishedcontent.ErrNotModified
	}

	set := &publishedcontent.NodeSet{Version: strconv.FormatInt(b.version, 10)}
	for _, n := range b.published {
		set.Published = append(set.Published, n.Clone())
	}
	for id, d := range b.drafts {
		if p, ok := b.published[id]; ok && p == d {
			continue
		}
		set.Draft = append(set.Draft, d.Clone())
	}
	sortNodes(set.Published)
	sortNodes(set.Draft)

	b.loaded = b.version
	b.hasLoaded = true
	return set, nil
}

// Save stores the draft of a node. A zero key is generated and a zero create date is set.
func (b *Backend) Save(ctx context.Context, node *publishedcontent.Node) error {
	if node == nil {
		return &publishedcontent.InvalidArgumentError{Op: "save", Arg: "node"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := node.Clone()
	now := time.Now().UTC()
	if n.Key == uuid.Nil {
		if existing, ok := b.drafts[n.ID]; ok {
			n.Key = existing.Key
		} else {
			n.Key = uuid.New()
		}
	}
	if n.CreateDate.IsZero() {
		n.CreateDate = now
	}
	if n.UpdateDate.IsZero() {
		n.UpdateDate = now
	}
	b.drafts[n.ID] = n
	b.version++
	return nil
}

// Publish makes the current draft of a node the published version.
func (b *Backend) Publish(ctx context.Context, id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.drafts[id]
	if !ok {
		return fmt.Errorf("publish %d: %w", id, publishedcontent.ErrContentNotFound)
	}
	b.published[id] = d
	b.version++
	return nil
}

// SaveAndPublish saves and publishes each node.
func (b *Backend) SaveAndPublish(ctx context.Context, nodes ...*publishedcontent.Node) error {
	for _, n := range nodes {
		if err := b.Save(ctx, n); err != nil {
			return err
		}
		if err := b.Publish(ctx, n.ID); err != nil {
			return err
		}
	}
	return nil
}

// Unpublish removes the published version and keeps the draft.
func (b *Backend) Unpublish(ctx context.Context, id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.published[id]; !ok {
		return fmt.Errorf("unpublish %d: %w", id, publishedcontent.ErrContentNotFound)
	}
	delete(b.published, id)
	b.version++
	return nil
}

// Delete removes both versions of a node.
func (b *Backend) Delete(ctx context.Context, id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, d := b.drafts[id]
	_, p := b.published[id]
	if !d && !p {
		return fmt.Errorf("delete %d: %w", id, publishedcontent.ErrContentNotFound)
	}
	delete(b.drafts, id)
	delete(b.published, id)
	b.version++
	return nil
}

func sortNodes(nodes []*publishedcontent.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}
