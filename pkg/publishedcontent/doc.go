// Package publishedcontent turns raw published property values into typed runtime values and
// caches the conversion work across three nested tiers.
//
// A Backend loads raw nodes into an immutable Snapshot. Each request opens a View over the
// current snapshot; the view builds Content items whose PublishedProperty values convert lazily
// through a ValueConverter, in two stages:
//
//	raw source --ConvertSourceToInter--> intermediate --ConvertInterToObject(level)--> object
//
// The effective CacheLevel of a property (EffectiveLevel of the requested and declared levels)
// selects where the object is shared:
//
//	None, Content  the property instance only
//	Request        the view's request scope
//	Snapshot       the snapshot scope, torn down when a reload replaces the snapshot
//	Elements       the process scope, owned by the Cache
//
// Once computed, a property's value never changes. Reloading the cache does not affect views
// that are already open; new views observe the new data.
//
// Example:
//
//	cache, err := publishedcontent.New(
//	    publishedcontent.WithBackend(memory.New()),
//	    publishedcontent.WithContentTypes(registry),
//	)
//	if err != nil { ... }
//	if _, err := cache.Reload(ctx); err != nil { ... }
//
//	view, err := cache.OpenView(false)
//	if err != nil { ... }
//	defer view.Close()
//
//	page, err := view.Content(1051)
//	title := page.Value("title")
package publishedcontent
