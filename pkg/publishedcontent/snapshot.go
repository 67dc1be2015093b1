package publishedcontent

import (
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newGeneration(t time.Time) ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy)
}

// tree indexes one side (published or preview) of a snapshot.
type tree struct {
	byID     map[int]*Node
	byKey    map[uuid.UUID]*Node
	children map[int][]*Node
	roots    []*Node
}

func buildTree(nodes []*Node) *tree {
	t := &tree{
		byID:     make(map[int]*Node, len(nodes)),
		byKey:    make(map[uuid.UUID]*Node, len(nodes)),
		children: make(map[int][]*Node),
	}
	for _, n := range nodes {
		if n == nil {
			continue
		}
		t.byID[n.ID] = n
		if n.Key != uuid.Nil {
			t.byKey[n.Key] = n
		}
	}
	for _, n := range t.byID {
		if _, ok := t.byID[n.ParentID]; ok && n.ParentID != n.ID {
			t.children[n.ParentID] = append(t.children[n.ParentID], n)
		} else {
			t.roots = append(t.roots, n)
		}
	}
	bySortOrder := func(list []*Node) {
		sort.Slice(list, func(i, j int) bool {
			if list[i].SortOrder != list[j].SortOrder {
				return list[i].SortOrder < list[j].SortOrder
			}
			return list[i].ID < list[j].ID
		})
	}
	bySortOrder(t.roots)
	for _, list := range t.children {
		bySortOrder(list)
	}
	return t
}

// Snapshot is one immutable generation of published content. It is safe for concurrent use.
// It owns the snapshot cache tier, which is closed when the snapshot is replaced.
type Snapshot struct {
	generation ulid.ULID
	loadedAt   time.Time
	version    string

	published *tree
	preview   *tree
	scope     *Scope
}

// NewSnapshot indexes a node set into a new generation. Nodes are cloned so later changes to
// the set are not observed.
func NewSnapshot(set *NodeSet, opts ...ScopeOption) *Snapshot {
	if set == nil {
		set = &NodeSet{}
	}
	published := make([]*Node, 0, len(set.Published))
	merged := make(map[int]*Node, len(set.Published)+len(set.Draft))
	for _, n := range set.Published {
		if n == nil {
			continue
		}
		c := n.Clone()
		published = append(published, c)
		merged[c.ID] = c
	}
	for _, n := range set.Draft {
		if n == nil {
			continue
		}
		merged[n.ID] = n.Clone()
	}
	preview := make([]*Node, 0, len(merged))
	for _, n := range merged {
		preview = append(preview, n)
	}

	now := time.Now()
	return &Snapshot{
		generation: newGeneration(now),
		loadedAt:   now,
		version:    set.Version,
		published:  buildTree(published),
		preview:    buildTree(preview),
		scope:      NewScope(TierSnapshot, opts...),
	}
}

func (s *Snapshot) tree(preview bool) *tree {
	if preview {
		return s.preview
	}
	return s.published
}

// Generation returns the unique, time-ordered id of the snapshot.
func (s *Snapshot) Generation() ulid.ULID { return s.generation }

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Version returns the backend version the snapshot was built from.
func (s *Snapshot) Version() string { return s.version }

// Scope returns the snapshot cache tier.
func (s *Snapshot) Scope() *Scope { return s.scope }

// Len returns the number of nodes visible with the given preview flag.
func (s *Snapshot) Len(preview bool) int { return len(s.tree(preview).byID) }

// Node returns a node by id.
func (s *Snapshot) Node(id int, preview bool) (*Node, bool) {
	n, ok := s.tree(preview).byID[id]
	return n, ok
}

// NodeByKey returns a node by its unique key.
func (s *Snapshot) NodeByKey(key uuid.UUID, preview bool) (*Node, bool) {
	n, ok := s.tree(preview).byKey[key]
	return n, ok
}

// Roots returns the top-level nodes ordered by sort order.
func (s *Snapshot) Roots(preview bool) []*Node {
	return s.tree(preview).roots
}

// Children returns the children of id ordered by sort order.
func (s *Snapshot) Children(id int, preview bool) []*Node {
	return s.tree(preview).children[id]
}

// Nodes returns every visible node ordered by id.
func (s *Snapshot) Nodes(preview bool) []*Node {
	t := s.tree(preview)
	out := make([]*Node, 0, len(t.byID))
	for _, n := range t.byID {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetRawValue returns the raw value of a property. A missing node or alias yields a
// *RawValueError wrapping ErrRawValueNotFound.
func (s *Snapshot) GetRawValue(contentID int, alias string, preview bool) (string, error) {
	n, ok := s.Node(contentID, preview)
	if !ok {
		return "", &RawValueError{ContentID: contentID, Alias: alias, Preview: preview, Err: ErrRawValueNotFound}
	}
	raw := n.RawValue(alias)
	if !raw.Found {
		return "", &RawValueError{ContentID: contentID, Alias: alias, Preview: preview, Err: ErrRawValueNotFound}
	}
	return raw.Value, nil
}

// changedIDs returns the ids whose published or preview data differ between two snapshots.
func changedIDs(old, cur *Snapshot) []int {
	seen := make(map[int]struct{})
	var ids []int
	add := func(id int) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, preview := range []bool{false, true} {
		a, b := old.tree(preview).byID, cur.tree(preview).byID
		for id, n := range a {
			if m, ok := b[id]; !ok || !n.equal(m) {
				add(id)
			}
		}
		for id := range b {
			if _, ok := a[id]; !ok {
				add(id)
			}
		}
	}
	sort.Ints(ids)
	return ids
}
