package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/published-content/pkg/publishedcontent"
	"github.com/tendant/published-content/pkg/publishedcontent/backend/internal/nodeset"
	"github.com/tendant/published-content/pkg/publishedcontent/contenttype"
	"github.com/tendant/published-content/pkg/publishedcontent/converters"
)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(filepath.Join(t.TempDir(), "content.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func page(id, parent int, props ...string) *publishedcontent.Node {
	n := &publishedcontent.Node{ID: id, ParentID: parent, Level: 1, Name: "n", ContentTypeAlias: "page"}
	for i := 0; i+1 < len(props); i += 2 {
		n.Properties = append(n.Properties, publishedcontent.RawProperty{Alias: props[i], Value: props[i+1]})
	}
	return n
}

func TestSQLiteBackend_SaveLoad(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.SaveNode(ctx, nodeset.StateDraft, page(1, -1, "title", "Home", "count", "42")))
	require.NoError(t, b.Publish(ctx, 1))
	require.NoError(t, b.SaveNode(ctx, nodeset.StateDraft, page(1, -1, "title", "Home v2")))

	set, err := b.Load(ctx)
	require.NoError(t, err)
	require.Len(t, set.Published, 1)
	require.Len(t, set.Draft, 1)
	assert.Equal(t, "Home", set.Published[0].RawValue("title").Value)
	assert.Equal(t, "42", set.Published[0].RawValue("count").Value)
	assert.Equal(t, "Home v2", set.Draft[0].RawValue("title").Value)
	assert.False(t, set.Draft[0].RawValue("count").Found)
	assert.Equal(t, set.Published[0].Key, set.Draft[0].Key)
	assert.False(t, set.Published[0].CreateDate.IsZero())

	_, err = b.Load(ctx)
	assert.ErrorIs(t, err, publishedcontent.ErrNotModified)

	require.NoError(t, b.DeleteNode(ctx, nodeset.StatePublished, 1))
	set, err = b.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, set.Published)
	assert.Len(t, set.Draft, 1)
}

func TestSQLiteBackend_KeyIsStable(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.SaveNode(ctx, nodeset.StateDraft, page(1, -1, "title", "Home")))
	require.NoError(t, b.Publish(ctx, 1))
	require.NoError(t, b.SaveNode(ctx, nodeset.StateDraft, page(1, -1, "title", "Home v2")))
	require.NoError(t, b.SaveNode(ctx, nodeset.StateDraft, page(1, -1, "title", "Home v3")))

	types, err := contenttype.New(converters.Default(nil))
	require.NoError(t, err)
	cache, err := publishedcontent.New(publishedcontent.WithBackend(b), publishedcontent.WithContentTypes(types))
	require.NoError(t, err)
	defer cache.Close()
	_, err = cache.Reload(ctx)
	require.NoError(t, err)

	published, err := cache.ResolveContent(1, false)
	require.NoError(t, err)
	draft, err := cache.ResolveContentByKey(published.Key(), true)
	require.NoError(t, err)
	assert.Equal(t, "Home v3", draft.Value("title"))

	// an explicit key still wins
	explicit := page(2, -1)
	explicit.Key = published.Key()
	explicit.Key[0] ^= 0xff
	require.NoError(t, b.SaveNode(ctx, nodeset.StatePublished, explicit))
	set, err := b.Load(ctx)
	require.NoError(t, err)
	require.Len(t, set.Published, 2)
	assert.Equal(t, explicit.Key, set.Published[1].Key)
}

func TestSQLiteBackend_Errors(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	assert.ErrorIs(t, b.Publish(ctx, 404), publishedcontent.ErrContentNotFound)
	assert.ErrorIs(t, b.DeleteNode(ctx, nodeset.StateDraft, 404), publishedcontent.ErrContentNotFound)
	assert.ErrorIs(t, b.SaveNode(ctx, "archived", page(1, -1)), publishedcontent.ErrInvalidArgument)
	assert.ErrorIs(t, b.SaveNode(ctx, nodeset.StateDraft, nil), publishedcontent.ErrInvalidArgument)

	_, err := Open("")
	assert.Error(t, err)
}

func TestSQLiteBackend_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.db")
	ctx := context.Background()

	b, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, b.SaveNode(ctx, nodeset.StatePublished, page(5, -1, "title", "Kept")))
	require.NoError(t, b.Close())

	b, err = Open(path)
	require.NoError(t, err)
	defer b.Close()
	set, err := b.Load(ctx)
	require.NoError(t, err)
	require.Len(t, set.Published, 1)
	assert.Equal(t, "Kept", set.Published[0].RawValue("title").Value)
}

func TestCacheOverSQLite(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.SaveNode(ctx, nodeset.StatePublished, page(1, -1, "title", "Home", "count", "42")))

	types, err := contenttype.New(converters.Default(nil))
	require.NoError(t, err)
	require.NoError(t, types.Define(contenttype.Definition{
		Alias: "page",
		Properties: []contenttype.PropertyDefinition{
			{Alias: "title", Editor: "text"},
			{Alias: "count", Editor: "integer"},
		},
	}))

	cache, err := publishedcontent.New(publishedcontent.WithBackend(b), publishedcontent.WithContentTypes(types))
	require.NoError(t, err)
	defer cache.Close()
	_, err = cache.Reload(ctx)
	require.NoError(t, err)

	view, err := cache.OpenView(false)
	require.NoError(t, err)
	defer view.Close()

	home, err := view.Content(1)
	require.NoError(t, err)
	assert.Equal(t, 42, home.Value("count"))
	assert.Equal(t, "Home", home.Value("title"))

	// elements-level values are shared through the process tier
	assert.Equal(t, 4, cache.ProcessScope().Len())
}
