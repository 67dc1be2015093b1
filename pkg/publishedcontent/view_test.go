package publishedcontent_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

func treeFixture(t *testing.T, titleLevel publishedcontent.CacheLevel) *cacheFixture {
	t.Helper()
	home := page(1, -1, 0, "title", "Home", "count", "42")
	home.Key = uuid.MustParse("0b8f3c1e-7a2d-4c55-9e0f-2d7e1b6a9c01")
	f := newCacheFixture(t, titleLevel, &publishedcontent.NodeSet{
		Published: []*publishedcontent.Node{
			home,
			page(3, 1, 2, "title", "About"),
			page(2, 1, 1, "title", "News"),
			page(7, 1, 3, "title", "Contact"),
			page(9, -1, 1, "title", "Settings"),
		},
		Draft: []*publishedcontent.Node{
			page(3, 1, 2, "title", "About (draft)"),
			page(11, 1, 4, "title", "Unpublished"),
		},
	})
	_, err := f.cache.Reload(context.Background())
	require.NoError(t, err)
	return f
}

func ids(items []*publishedcontent.Content) []int {
	out := make([]int, 0, len(items))
	for _, c := range items {
		out = append(out, c.ID())
	}
	return out
}

func TestViewNavigation(t *testing.T) {
	f := treeFixture(t, publishedcontent.CacheLevelContent)
	view, err := f.cache.OpenView(false)
	require.NoError(t, err)
	defer view.Close()

	roots, err := view.ContentAtRoot()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 9}, ids(roots))

	children, err := view.Children(1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 7}, ids(children))

	parent, err := view.Parent(3)
	require.NoError(t, err)
	assert.Equal(t, 1, parent.ID())

	_, err = view.Parent(1)
	assert.ErrorIs(t, err, publishedcontent.ErrContentNotFound)

	_, err = view.Content(11)
	assert.ErrorIs(t, err, publishedcontent.ErrContentNotFound)

	many, err := view.ContentMany(7, 404, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 2}, ids(many))
}

func TestViewMemoizesContent(t *testing.T) {
	f := treeFixture(t, publishedcontent.CacheLevelContent)
	view, err := f.cache.OpenView(false)
	require.NoError(t, err)
	defer view.Close()

	a, err := view.Content(1)
	require.NoError(t, err)
	b, err := view.Content(1)
	require.NoError(t, err)
	assert.Same(t, a, b)

	assert.Equal(t, 42, a.Value("count"))
	assert.Equal(t, 42, b.Value("COUNT"))
	assert.Equal(t, int32(1), f.count.objectCalls.Load())
}

func TestViewPreview(t *testing.T) {
	f := treeFixture(t, publishedcontent.CacheLevelElements)

	published, err := f.cache.OpenView(false)
	require.NoError(t, err)
	defer published.Close()
	preview, err := f.cache.OpenView(true)
	require.NoError(t, err)
	defer preview.Close()

	pc, err := preview.Content(3)
	require.NoError(t, err)
	assert.Equal(t, "About (draft)", pc.Value("title"))
	assert.True(t, pc.Preview())

	c, err := published.Content(3)
	require.NoError(t, err)
	assert.Equal(t, "About", c.Value("title"))

	children, err := preview.Children(1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 7, 11}, ids(children))
}

func TestViewMissingPropertyIsEmpty(t *testing.T) {
	f := treeFixture(t, publishedcontent.CacheLevelContent)
	view, err := f.cache.OpenView(false)
	require.NoError(t, err)
	defer view.Close()

	p, err := view.Property(7, "bodyText")
	require.NoError(t, err)
	assert.False(t, p.HasValue())
	assert.Equal(t, "", p.SourceValue())
	assert.Equal(t, "", p.Value())

	undeclared, err := view.Property(7, "metaDescription")
	require.NoError(t, err)
	assert.False(t, undeclared.HasValue())
	assert.Equal(t, "", undeclared.SourceValue())

	c, err := view.Content(7)
	require.NoError(t, err)
	assert.False(t, c.HasValue("bodyText"))
	assert.Nil(t, c.Value("metaDescription"))
}

func TestContentPropertyOrder(t *testing.T) {
	node := page(20, -1, 0, "extra", "x", "title", "T")
	f := newCacheFixture(t, publishedcontent.CacheLevelContent, &publishedcontent.NodeSet{
		Published: []*publishedcontent.Node{node},
	})
	_, err := f.cache.Reload(context.Background())
	require.NoError(t, err)

	view, err := f.cache.OpenView(false)
	require.NoError(t, err)
	defer view.Close()

	c, err := view.Content(20)
	require.NoError(t, err)

	var aliases []string
	for _, p := range c.Properties() {
		aliases = append(aliases, p.Alias())
	}
	assert.Equal(t, []string{"title", "count", "bodyText", "extra"}, aliases)
	assert.Equal(t, "x", c.Value("extra"))
}

func TestViewContentByRef(t *testing.T) {
	f := treeFixture(t, publishedcontent.CacheLevelContent)
	view, err := f.cache.OpenView(false)
	require.NoError(t, err)
	defer view.Close()

	for _, ref := range []any{1, "1", int64(1), "0b8f3c1e-7a2d-4c55-9e0f-2d7e1b6a9c01", uuid.MustParse("0b8f3c1e-7a2d-4c55-9e0f-2d7e1b6a9c01")} {
		c, err := view.ContentByRef(ref)
		require.NoError(t, err, "ref %v", ref)
		assert.Equal(t, 1, c.ID())
	}

	_, err = view.ContentByRef(struct{}{})
	assert.ErrorIs(t, err, publishedcontent.ErrInvalidArgument)

	// unparsable strings name no content
	for _, ref := range []string{"abc", "", "12x"} {
		_, err = view.ContentByRef(ref)
		assert.ErrorIs(t, err, publishedcontent.ErrContentNotFound, "ref %q", ref)
		assert.NotErrorIs(t, err, publishedcontent.ErrInvalidArgument, "ref %q", ref)
	}
}

func TestViewCloseTearsDownRequestTier(t *testing.T) {
	f := treeFixture(t, publishedcontent.CacheLevelRequest)

	var closed int
	view, err := f.cache.OpenView(false)
	require.NoError(t, err)
	view.RequestScope().OnTeardown(func() { closed++ })

	c, err := view.Content(1)
	require.NoError(t, err)
	assert.Equal(t, "Home", c.Value("title"))
	assert.Equal(t, 2, view.RequestScope().Len())

	view.Close()
	view.Close()
	assert.Equal(t, 1, closed)
	assert.Equal(t, 0, view.RequestScope().Len())

	_, err = view.Content(1)
	assert.ErrorIs(t, err, publishedcontent.ErrViewClosed)
}

func TestViewContext(t *testing.T) {
	f := treeFixture(t, publishedcontent.CacheLevelContent)
	view, err := f.cache.OpenView(false)
	require.NoError(t, err)
	defer view.Close()

	_, ok := publishedcontent.FromContext(context.Background())
	assert.False(t, ok)

	ctx := publishedcontent.NewContext(context.Background(), view)
	got, ok := publishedcontent.FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, view, got)
}

func TestParseContentID(t *testing.T) {
	tests := []struct {
		in      any
		want    int
		wantErr bool
	}{
		{1051, 1051, false},
		{int64(7), 7, false},
		{" 42 ", 42, false},
		{float64(3), 3, false},
		{"abc", 0, true},
		{3.5, 0, true},
		{nil, 0, true},
		{[]int{1}, 0, true},
	}

	for _, tt := range tests {
		got, err := publishedcontent.ParseContentID(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, publishedcontent.ErrInvalidArgument, "input %v", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
