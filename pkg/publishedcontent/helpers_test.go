package publishedcontent_test

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

// countingConverter counts conversions and parses integers or passes text through.
type countingConverter struct {
	level       publishedcontent.CacheLevel
	integer     bool
	interCalls  atomic.Int32
	objectCalls atomic.Int32
	panicOn     string
}

func (c *countingConverter) HasValue(source string) bool {
	return strings.TrimSpace(source) != ""
}

func (c *countingConverter) ConvertSourceToInter(_ *publishedcontent.PropertyType, source string, _ bool) (any, error) {
	c.interCalls.Add(1)
	if c.panicOn != "" && source == c.panicOn {
		panic("malformed")
	}
	if c.integer {
		if strings.TrimSpace(source) == "" {
			return 0, nil
		}
		return strconv.Atoi(strings.TrimSpace(source))
	}
	return strings.TrimSpace(source), nil
}

func (c *countingConverter) ConvertInterToObject(_ *publishedcontent.PropertyType, _ publishedcontent.CacheLevel, inter any, _ bool) (any, error) {
	c.objectCalls.Add(1)
	return inter, nil
}

func (c *countingConverter) DefaultValue() any {
	if c.integer {
		return 0
	}
	return ""
}

func (c *countingConverter) CacheLevel() publishedcontent.CacheLevel { return c.level }

func newPropertyType(t *testing.T, alias string, conv publishedcontent.ValueConverter, opts ...publishedcontent.PropertyTypeOption) *publishedcontent.PropertyType {
	t.Helper()
	pt, err := publishedcontent.NewPropertyType(alias, conv, opts...)
	require.NoError(t, err)
	return pt
}

// fakeBackend returns the queued node sets in order; the last one repeats.
type fakeBackend struct {
	mu      sync.Mutex
	sets    []*publishedcontent.NodeSet
	err     error
	loads   int
	created atomic.Int32
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Load(ctx context.Context) (*publishedcontent.NodeSet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	i := b.loads
	if i >= len(b.sets) {
		i = len(b.sets) - 1
	}
	b.loads++
	return b.sets[i], nil
}

func (b *fakeBackend) push(set *publishedcontent.NodeSet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sets = append(b.sets, set)
}

func (b *fakeBackend) OwnsStructuralView() bool { return false }

func (b *fakeBackend) NewProperty(pt *publishedcontent.PropertyType, contentID int, raw publishedcontent.RawValue, preview bool, scopes publishedcontent.Scopes) (publishedcontent.PublishedProperty, error) {
	b.created.Add(1)
	return publishedcontent.NewProperty(pt, contentID, raw, preview,
		publishedcontent.WithScopes(scopes), publishedcontent.WithBackendName(b.Name()))
}

// fakeTypes declares content types and falls back to a text property type.
type fakeTypes struct {
	types    map[string][]*publishedcontent.PropertyType
	fallback *countingConverter
}

func (f *fakeTypes) PropertyTypes(alias string) ([]*publishedcontent.PropertyType, bool) {
	pts, ok := f.types[alias]
	return pts, ok
}

func (f *fakeTypes) Fallback(alias string) *publishedcontent.PropertyType {
	pt, err := publishedcontent.NewPropertyType(alias, f.fallback)
	if err != nil {
		return nil
	}
	return pt
}

func page(id, parent, sort int, props ...string) *publishedcontent.Node {
	n := &publishedcontent.Node{
		ID:               id,
		ParentID:         parent,
		SortOrder:        sort,
		Name:             "Page " + strconv.Itoa(id),
		ContentTypeAlias: "page",
	}
	for i := 0; i+1 < len(props); i += 2 {
		n.Properties = append(n.Properties, publishedcontent.RawProperty{Alias: props[i], Value: props[i+1]})
	}
	return n
}
