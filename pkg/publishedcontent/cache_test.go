package publishedcontent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

type cacheFixture struct {
	cache   *publishedcontent.Cache
	backend *fakeBackend
	title   *countingConverter
	count   *countingConverter
	metrics *publishedcontent.CountingMetrics
}

func newCacheFixture(t *testing.T, titleLevel publishedcontent.CacheLevel, sets ...*publishedcontent.NodeSet) *cacheFixture {
	t.Helper()

	f := &cacheFixture{
		backend: &fakeBackend{sets: sets},
		title:   &countingConverter{},
		count:   &countingConverter{integer: true},
		metrics: publishedcontent.NewCountingMetrics(),
	}
	types := &fakeTypes{
		types: map[string][]*publishedcontent.PropertyType{
			"page": {
				newPropertyType(t, "title", f.title, publishedcontent.WithCacheLevel(titleLevel)),
				newPropertyType(t, "count", f.count),
				newPropertyType(t, "bodyText", &countingConverter{}),
			},
		},
		fallback: &countingConverter{},
	}

	cache, err := publishedcontent.New(
		publishedcontent.WithBackend(f.backend),
		publishedcontent.WithContentTypes(types),
		publishedcontent.WithMetrics(f.metrics),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	f.cache = cache
	return f
}

func TestNewRequiresBackendAndTypes(t *testing.T) {
	_, err := publishedcontent.New()
	assert.Error(t, err)

	_, err = publishedcontent.New(publishedcontent.WithBackend(&fakeBackend{}))
	assert.Error(t, err)
}

func TestCacheBeforeFirstReload(t *testing.T) {
	f := newCacheFixture(t, publishedcontent.CacheLevelSnapshot, &publishedcontent.NodeSet{})

	_, err := f.cache.OpenView(false)
	assert.ErrorIs(t, err, publishedcontent.ErrSnapshotNotLoaded)

	_, err = f.cache.GetRawValue(context.Background(), 1, "title", false)
	assert.ErrorIs(t, err, publishedcontent.ErrSnapshotNotLoaded)
}

func TestGetRawValueConsistentWithinSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(t, publishedcontent.CacheLevelSnapshot, &publishedcontent.NodeSet{
		Published: []*publishedcontent.Node{page(1, -1, 0, "title", "Home")},
		Draft:     []*publishedcontent.Node{page(1, -1, 0, "title", "Home (draft)")},
	})
	_, err := f.cache.Reload(ctx)
	require.NoError(t, err)

	a, err := f.cache.GetRawValue(ctx, 1, "title", false)
	require.NoError(t, err)
	b, err := f.cache.GetRawValue(ctx, 1, "title", false)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "Home", a)

	draft, err := f.cache.GetRawValue(ctx, 1, "TITLE", true)
	require.NoError(t, err)
	assert.Equal(t, "Home (draft)", draft)

	_, err = f.cache.GetRawValue(ctx, 7, "bodyText", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, publishedcontent.ErrRawValueNotFound)

	var rawErr *publishedcontent.RawValueError
	require.True(t, errors.As(err, &rawErr))
	assert.Equal(t, 7, rawErr.ContentID)
	assert.Equal(t, "bodyText", rawErr.Alias)
}

func TestReloadIsolatesMaterializedProperties(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(t, publishedcontent.CacheLevelElements,
		&publishedcontent.NodeSet{Published: []*publishedcontent.Node{page(1, -1, 0, "title", "Old")}},
	)
	_, err := f.cache.Reload(ctx)
	require.NoError(t, err)

	oldView, err := f.cache.OpenView(false)
	require.NoError(t, err)
	defer oldView.Close()

	oldTitle, err := oldView.Property(1, "title")
	require.NoError(t, err)
	assert.Equal(t, "Old", oldTitle.Value())

	f.backend.push(&publishedcontent.NodeSet{Published: []*publishedcontent.Node{page(1, -1, 0, "title", "New")}})
	res, err := f.cache.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Changed)
	assert.False(t, res.Skipped)

	newView, err := f.cache.OpenView(false)
	require.NoError(t, err)
	defer newView.Close()

	newTitle, err := newView.Property(1, "title")
	require.NoError(t, err)
	assert.Equal(t, "New", newTitle.Value())

	assert.Equal(t, "Old", oldTitle.Value())
	raw, err := oldView.Snapshot().GetRawValue(1, "title", false)
	require.NoError(t, err)
	assert.Equal(t, "Old", raw)
	assert.NotEqual(t, oldView.Snapshot().Generation(), newView.Snapshot().Generation())
}

func TestRetiredViewDoesNotRefillProcessTier(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(t, publishedcontent.CacheLevelElements,
		&publishedcontent.NodeSet{Published: []*publishedcontent.Node{page(1, -1, 0, "title", "Old")}},
	)
	_, err := f.cache.Reload(ctx)
	require.NoError(t, err)

	oldView, err := f.cache.OpenView(false)
	require.NoError(t, err)
	defer oldView.Close()

	f.backend.push(&publishedcontent.NodeSet{Published: []*publishedcontent.Node{page(1, -1, 0, "title", "New")}})
	_, err = f.cache.Reload(ctx)
	require.NoError(t, err)

	// the old view first computes after the reload
	oldTitle, err := oldView.Property(1, "title")
	require.NoError(t, err)
	assert.Equal(t, "Old", oldTitle.Value())
	assert.Equal(t, 0, f.cache.ProcessScope().Len())

	newView, err := f.cache.OpenView(false)
	require.NoError(t, err)
	defer newView.Close()
	newTitle, err := newView.Property(1, "title")
	require.NoError(t, err)
	assert.Equal(t, "New", newTitle.Value())
	assert.Equal(t, 2, f.cache.ProcessScope().Len())

	// the retired view keeps its own value
	assert.Equal(t, "Old", oldTitle.Value())
	assert.Equal(t, 2, f.cache.ProcessScope().Len())
}

func TestReloadNotModifiedKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(t, publishedcontent.CacheLevelSnapshot,
		&publishedcontent.NodeSet{Published: []*publishedcontent.Node{page(1, -1, 0)}},
	)
	_, err := f.cache.Reload(ctx)
	require.NoError(t, err)
	first := f.cache.Snapshot()

	f.backend.err = publishedcontent.ErrNotModified
	res, err := f.cache.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Same(t, first, f.cache.Snapshot())
}

func TestReloadFailureKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(t, publishedcontent.CacheLevelSnapshot,
		&publishedcontent.NodeSet{Published: []*publishedcontent.Node{page(1, -1, 0)}},
	)
	_, err := f.cache.Reload(ctx)
	require.NoError(t, err)
	first := f.cache.Snapshot()

	f.backend.err = errors.New("disk gone")
	_, err = f.cache.Reload(ctx)
	require.Error(t, err)

	var reloadErr *publishedcontent.ReloadError
	require.True(t, errors.As(err, &reloadErr))
	assert.Equal(t, "fake", reloadErr.Backend)
	assert.Same(t, first, f.cache.Snapshot())
}

func TestReloadTearsDownReplacedSnapshotTier(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(t, publishedcontent.CacheLevelSnapshot,
		&publishedcontent.NodeSet{Published: []*publishedcontent.Node{page(1, -1, 0, "title", "A")}},
	)
	_, err := f.cache.Reload(ctx)
	require.NoError(t, err)

	view, err := f.cache.OpenView(false)
	require.NoError(t, err)
	c, err := view.Content(1)
	require.NoError(t, err)
	assert.Equal(t, "A", c.Value("title"))
	view.Close()

	old := f.cache.Snapshot()
	assert.Equal(t, 2, old.Scope().Len())

	_, err = f.cache.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, old.Scope().Closed())
	assert.Equal(t, 0, old.Scope().Len())
	assert.False(t, f.cache.Snapshot().Scope().Closed())
}

func TestSnapshotTierSharedAcrossViews(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(t, publishedcontent.CacheLevelSnapshot,
		&publishedcontent.NodeSet{Published: []*publishedcontent.Node{page(1, -1, 0, "title", "Shared")}},
	)
	_, err := f.cache.Reload(ctx)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		view, err := f.cache.OpenView(false)
		require.NoError(t, err)
		c, err := view.Content(1)
		require.NoError(t, err)
		assert.Equal(t, "Shared", c.Value("title"))
		view.Close()
	}
	assert.Equal(t, int32(1), f.title.objectCalls.Load())

	stats := f.cache.Stats()
	assert.Equal(t, int64(2), stats.Tiers["snapshot"].Hits)
	assert.Equal(t, 1, stats.Published)
	assert.Equal(t, int64(1), stats.Reloads)
}

func TestInvalidateDropsSharedEntriesOnly(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(t, publishedcontent.CacheLevelElements,
		&publishedcontent.NodeSet{Published: []*publishedcontent.Node{page(1, -1, 0, "title", "T")}},
	)
	_, err := f.cache.Reload(ctx)
	require.NoError(t, err)

	view, err := f.cache.OpenView(false)
	require.NoError(t, err)
	defer view.Close()
	p, err := view.Property(1, "title")
	require.NoError(t, err)
	assert.Equal(t, "T", p.Value())
	assert.Equal(t, 2, f.cache.ProcessScope().Len())

	assert.Equal(t, 2, f.cache.Invalidate(ctx, 1))
	assert.Equal(t, 0, f.cache.ProcessScope().Len())
	assert.Equal(t, "T", p.Value())
	assert.Equal(t, int32(1), f.title.objectCalls.Load())
}

func TestReloadHooksAndEvents(t *testing.T) {
	ctx := context.Background()
	var before, after int
	var changed []int
	hooks := &publishedcontent.Hooks{
		BeforeReload: []publishedcontent.BeforeReloadHook{
			func(hctx *publishedcontent.HookContext, backend string) error {
				before++
				assert.Equal(t, "fake", backend)
				return nil
			},
		},
		AfterReload: []publishedcontent.AfterReloadHook{
			func(hctx *publishedcontent.HookContext, snap *publishedcontent.Snapshot, ids []int) error {
				after++
				changed = ids
				return nil
			},
		},
	}

	backend := &fakeBackend{sets: []*publishedcontent.NodeSet{
		{Published: []*publishedcontent.Node{page(1, -1, 0, "title", "a"), page(2, 1, 0)}},
		{Published: []*publishedcontent.Node{page(1, -1, 0, "title", "b"), page(3, 1, 0)}},
	}}
	cache, err := publishedcontent.New(
		publishedcontent.WithBackend(backend),
		publishedcontent.WithContentTypes(&fakeTypes{fallback: &countingConverter{}}),
		publishedcontent.WithHooks(hooks),
		publishedcontent.WithEventSink(publishedcontent.NewLoggingEventSink(nil)),
	)
	require.NoError(t, err)
	defer cache.Close()

	_, err = cache.Reload(ctx)
	require.NoError(t, err)
	_, err = cache.Reload(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, before)
	assert.Equal(t, 2, after)
	assert.Equal(t, []int{1, 2, 3}, changed)
}

func TestBeforeReloadHookCanAbort(t *testing.T) {
	var seen string
	hooks := &publishedcontent.Hooks{
		BeforeReload: []publishedcontent.BeforeReloadHook{
			func(*publishedcontent.HookContext, string) error { return errors.New("maintenance") },
		},
		OnError: []publishedcontent.ErrorHook{
			func(_ *publishedcontent.HookContext, op string, err error) { seen = op },
		},
	}
	cache, err := publishedcontent.New(
		publishedcontent.WithBackend(&fakeBackend{sets: []*publishedcontent.NodeSet{{}}}),
		publishedcontent.WithContentTypes(&fakeTypes{fallback: &countingConverter{}}),
		publishedcontent.WithHooks(hooks),
	)
	require.NoError(t, err)

	_, err = cache.Reload(context.Background())
	assert.EqualError(t, err, "maintenance")
	assert.Equal(t, "reload", seen)
	assert.Nil(t, cache.Snapshot())
}

func TestViewClosedHook(t *testing.T) {
	var closed []bool
	hooks := &publishedcontent.Hooks{
		OnViewClosed: []publishedcontent.ViewClosedHook{
			func(hctx *publishedcontent.HookContext, v *publishedcontent.View) {
				closed = append(closed, v.Preview())
				hctx.StopChain = true
			},
			func(*publishedcontent.HookContext, *publishedcontent.View) {
				t.Error("chain should have stopped")
			},
		},
	}
	cache, err := publishedcontent.New(
		publishedcontent.WithBackend(&fakeBackend{sets: []*publishedcontent.NodeSet{{}}}),
		publishedcontent.WithContentTypes(&fakeTypes{fallback: &countingConverter{}}),
		publishedcontent.WithHooks(hooks),
	)
	require.NoError(t, err)
	defer cache.Close()
	_, err = cache.Reload(context.Background())
	require.NoError(t, err)

	view, err := cache.OpenView(true)
	require.NoError(t, err)
	view.Close()
	view.Close()
	assert.Equal(t, []bool{true}, closed)
}

func TestClosedCache(t *testing.T) {
	f := newCacheFixture(t, publishedcontent.CacheLevelSnapshot, &publishedcontent.NodeSet{})
	require.NoError(t, f.cache.Close())

	_, err := f.cache.Reload(context.Background())
	assert.ErrorIs(t, err, publishedcontent.ErrCacheClosed)
	assert.True(t, f.cache.ProcessScope().Closed())
}
