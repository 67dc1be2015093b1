package xmlfile

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/published-content/pkg/publishedcontent"
	memorystorage "github.com/tendant/published-content/pkg/publishedcontent/storage/memory"
)

type recordingConverter struct {
	calls     atomic.Int32
	lastLevel atomic.Int32
}

func (c *recordingConverter) HasValue(source string) bool { return strings.TrimSpace(source) != "" }

func (c *recordingConverter) ConvertSourceToInter(_ *publishedcontent.PropertyType, source string, _ bool) (any, error) {
	return strings.TrimSpace(source), nil
}

func (c *recordingConverter) ConvertInterToObject(_ *publishedcontent.PropertyType, level publishedcontent.CacheLevel, inter any, _ bool) (any, error) {
	c.calls.Add(1)
	c.lastLevel.Store(int32(level))
	return inter, nil
}

func (c *recordingConverter) DefaultValue() any { return "" }
func (c *recordingConverter) CacheLevel() publishedcontent.CacheLevel {
	return publishedcontent.CacheLevelElements
}

type staticTypes struct {
	types    []*publishedcontent.PropertyType
	fallback publishedcontent.ValueConverter
}

func (s *staticTypes) PropertyTypes(string) ([]*publishedcontent.PropertyType, bool) {
	return s.types, true
}

func (s *staticTypes) Fallback(alias string) *publishedcontent.PropertyType {
	pt, err := publishedcontent.NewPropertyType(alias, s.fallback)
	if err != nil {
		return nil
	}
	return pt
}

func newTitleType(t *testing.T, conv publishedcontent.ValueConverter) *publishedcontent.PropertyType {
	t.Helper()
	pt, err := publishedcontent.NewPropertyType("title", conv)
	require.NoError(t, err)
	return pt
}

func put(t *testing.T, store publishedcontent.DocumentStore, key, doc string) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), key, strings.NewReader(doc)))
}

func TestLoadVersions(t *testing.T) {
	ctx := context.Background()
	store := memorystorage.New()
	b := New(store, WithPreviewKey("preview.config"))

	_, err := b.Load(ctx)
	assert.ErrorIs(t, err, publishedcontent.ErrObjectNotFound)

	put(t, store, DefaultKey, sampleDocument)
	set, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, set.Published, 3)
	assert.Empty(t, set.Draft)

	_, err = b.Load(ctx)
	assert.ErrorIs(t, err, publishedcontent.ErrNotModified)

	put(t, store, "preview.config", `<root id="-1"><Home id="1051" isDoc=""><title>Draft</title></Home></root>`)
	set, err = b.Load(ctx)
	require.NoError(t, err)
	require.Len(t, set.Draft, 1)
	assert.Equal(t, "Draft", set.Draft[0].RawValue("title").Value)
	assert.NotEqual(t, "", set.Version)
}

func TestLoadDecodeError(t *testing.T) {
	store := memorystorage.New()
	put(t, store, DefaultKey, `<root><Page isDoc=""/></root>`)

	_, err := New(store).Load(context.Background())
	assert.ErrorContains(t, err, DefaultKey)
}

func TestSaveThenLoad(t *testing.T) {
	ctx := context.Background()
	store := memorystorage.New()
	b := New(store, WithKey("site.config"), WithPreviewKey("site.preview"))

	set := &publishedcontent.NodeSet{
		Published: []*publishedcontent.Node{{ID: 1, ParentID: -1, Level: 1, Name: "Home", ContentTypeAlias: "page",
			Properties: []publishedcontent.RawProperty{{Alias: "title", Value: "Home"}}}},
		Draft: []*publishedcontent.Node{{ID: 1, ParentID: -1, Level: 1, Name: "Home", ContentTypeAlias: "page",
			Properties: []publishedcontent.RawProperty{{Alias: "title", Value: "Home v2"}}}},
	}
	require.NoError(t, b.Save(ctx, set))

	loaded, err := b.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Published, 1)
	require.Len(t, loaded.Draft, 1)
	assert.Equal(t, "Home v2", loaded.Draft[0].RawValue("title").Value)
}

func TestPropertyConstruction(t *testing.T) {
	pt := newTitleType(t, &recordingConverter{})

	_, err := NewProperty(pt, false, nil)
	var argErr *publishedcontent.InvalidArgumentError
	require.True(t, errors.As(err, &argErr))
	assert.ErrorIs(t, err, publishedcontent.ErrInvalidArgument)

	_, err = NewPropertyFromString(nil, false, "x")
	assert.ErrorIs(t, err, publishedcontent.ErrInvalidArgument)

	el, err := ParseElement(`<title><![CDATA[  ]]></title>`)
	require.NoError(t, err)
	p, err := NewProperty(pt, false, el)
	require.NoError(t, err)
	assert.Equal(t, "  ", p.SourceValue())
	assert.False(t, p.HasValue())
	assert.Equal(t, "", p.Value())

	empty, err := NewEmptyProperty(pt, true)
	require.NoError(t, err)
	assert.Equal(t, "", empty.SourceValue())
	assert.False(t, empty.HasValue())
}

func TestPropertyConvertsAtContentLevelOnce(t *testing.T) {
	conv := &recordingConverter{}
	pt := newTitleType(t, conv)

	p, err := NewPropertyFromString(pt, false, " Welcome ")
	require.NoError(t, err)
	assert.True(t, p.HasValue())
	for range 4 {
		assert.Equal(t, "Welcome", p.Value())
	}
	assert.Equal(t, int32(1), conv.calls.Load())
	assert.Equal(t, int32(publishedcontent.CacheLevelContent), conv.lastLevel.Load())

	_, err = p.XPathValue()
	var capErr *publishedcontent.CapabilityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, "xmlfile", capErr.Backend)
}

func TestCacheOverXMLBackend(t *testing.T) {
	ctx := context.Background()
	store := memorystorage.New()
	put(t, store, DefaultKey, sampleDocument)

	conv := &recordingConverter{}
	title := newTitleType(t, conv)
	types := &staticTypes{types: []*publishedcontent.PropertyType{title}, fallback: &recordingConverter{}}

	b := New(store)
	assert.True(t, b.OwnsStructuralView())

	cache, err := publishedcontent.New(publishedcontent.WithBackend(b), publishedcontent.WithContentTypes(types))
	require.NoError(t, err)
	defer cache.Close()
	_, err = cache.Reload(ctx)
	require.NoError(t, err)

	raw, err := cache.GetRawValue(ctx, 1051, "rich", false)
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello <b>world</b></p>", raw)

	// XML properties never share values through the cache tiers
	for range 2 {
		view, err := cache.OpenView(false)
		require.NoError(t, err)
		p, err := view.Property(1051, "title")
		require.NoError(t, err)
		_, ok := p.(*Property)
		require.True(t, ok)
		assert.Equal(t, "Welcome", p.Value())
		view.Close()
	}
	assert.Equal(t, int32(2), conv.calls.Load())
	assert.Equal(t, 0, cache.ProcessScope().Len())

	view, err := cache.OpenView(false)
	require.NoError(t, err)
	defer view.Close()
	children, err := view.Children(1051)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "About", children[0].Name())

	missing, err := view.Property(1052, "bodyText")
	require.NoError(t, err)
	assert.False(t, missing.HasValue())
	assert.Equal(t, "", missing.SourceValue())
}

func TestEncodeEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, nil))
	nodes, err := Decode(&buf)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}
