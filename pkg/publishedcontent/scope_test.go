package publishedcontent

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(id int, alias string) Key {
	return Key{ContentID: id, Alias: alias, Level: CacheLevelSnapshot, Stage: StageObject, Fingerprint: Fingerprint(alias)}
}

func TestScopeGetOrCompute(t *testing.T) {
	metrics := NewCountingMetrics()
	s := NewScope(TierSnapshot, WithScopeMetrics(metrics))

	calls := 0
	compute := func() any {
		calls++
		return "v"
	}

	assert.Equal(t, "v", s.GetOrCompute(testKey(1, "a"), compute))
	assert.Equal(t, "v", s.GetOrCompute(testKey(1, "a"), compute))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, s.Len())

	stats := metrics.Snapshot()["snapshot"]
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestScopeGetOrComputeUnless(t *testing.T) {
	s := NewScope(TierProcess)
	retired := false
	skip := func() bool { return retired }

	// guard flips while computing
	v := s.GetOrComputeUnless(testKey(1, "a"), func() any {
		retired = true
		return "stale"
	}, skip)
	assert.Equal(t, "stale", v)
	assert.Equal(t, 0, s.Len())

	// existing entries are still served
	s.Set(testKey(2, "b"), "shared")
	assert.Equal(t, "shared", s.GetOrComputeUnless(testKey(2, "b"), func() any { return "other" }, skip))

	retired = false
	assert.Equal(t, "fresh", s.GetOrComputeUnless(testKey(1, "a"), func() any { return "fresh" }, skip))
	assert.Equal(t, 2, s.Len())
}

func TestScopesRetired(t *testing.T) {
	snap := NewScope(TierSnapshot)
	scopes := Scopes{Process: NewScope(TierProcess), Snapshot: snap}
	assert.False(t, scopes.retired())
	snap.Close()
	assert.True(t, scopes.retired())
	assert.False(t, Scopes{}.retired())
}

func TestScopeConcurrentMissComputesOnce(t *testing.T) {
	s := NewScope(TierProcess)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]any, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.GetOrCompute(testKey(1, "a"), func() any {
				calls.Add(1)
				<-release
				return 42
			})
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, 42, r)
	}
}

func TestScopeInvalidateContent(t *testing.T) {
	metrics := NewCountingMetrics()
	s := NewScope(TierProcess, WithScopeMetrics(metrics))
	s.Set(testKey(1, "a"), 1)
	s.Set(testKey(1, "b"), 2)
	s.Set(testKey(2, "a"), 3)

	assert.Equal(t, 2, s.InvalidateContent(1))
	assert.Equal(t, 1, s.Len())
	_, ok := s.Get(testKey(2, "a"))
	assert.True(t, ok)

	assert.Equal(t, 0, s.InvalidateContent())
	assert.Equal(t, 1, s.Clear())
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, int64(3), metrics.Snapshot()["process"].Invalidated)
}

func TestScopeCloseRunsTeardownOnce(t *testing.T) {
	s := NewScope(TierRequest)
	s.Set(testKey(1, "a"), 1)

	var torn int
	s.OnTeardown(func() { torn++ })

	s.Close()
	s.Close()
	assert.Equal(t, 1, torn)
	assert.True(t, s.Closed())
	assert.Equal(t, 0, s.Len())

	// closed scopes still compute but stop storing
	v := s.GetOrCompute(testKey(2, "b"), func() any { return "x" })
	assert.Equal(t, "x", v)
	assert.Equal(t, 0, s.Len())
}

func TestScopesFor(t *testing.T) {
	scopes := Scopes{
		Process:  NewScope(TierProcess),
		Snapshot: NewScope(TierSnapshot),
		Request:  NewScope(TierRequest),
	}

	assert.Same(t, scopes.Process, scopes.For(CacheLevelElements))
	assert.Same(t, scopes.Snapshot, scopes.For(CacheLevelSnapshot))
	assert.Same(t, scopes.Request, scopes.For(CacheLevelRequest))
	assert.Nil(t, scopes.For(CacheLevelContent))
	assert.Nil(t, scopes.For(CacheLevelNone))
	assert.Nil(t, scopes.For(CacheLevelUnknown))
}

func TestKeyDistinguishesPreviewAndStage(t *testing.T) {
	s := NewScope(TierSnapshot)
	k := testKey(1, "a")
	s.Set(k, "published")

	preview := k
	preview.Preview = true
	_, ok := s.Get(preview)
	require.False(t, ok)

	inter := k
	inter.Stage = StageInter
	_, ok = s.Get(inter)
	require.False(t, ok)
}
