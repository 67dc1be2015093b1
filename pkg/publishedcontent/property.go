package publishedcontent

// PublishedProperty is one property value of one published content item.
//
// A property instance is owned by a single goroutine at a time. Its memoized values are not
// synchronized; callers obtain their own instances through a View instead of sharing them.
type PublishedProperty interface {
	// Alias returns the property alias.
	Alias() string

	// PropertyType returns the shared descriptor of the property.
	PropertyType() *PropertyType

	// SourceValue returns the raw stored value, or "" when the backend holds none.
	SourceValue() string

	// HasValue applies the type's emptiness rule to the raw value. It never converts.
	HasValue() bool

	// Value returns the converted object. The first call converts, later calls return the memo.
	Value() any

	// XPathValue returns a structural view of the raw value, or an error wrapping
	// ErrUnsupportedCapability when the backend has none.
	XPathValue() (any, error)
}

// RawValue is a raw source value as read from a backend.
type RawValue struct {
	Value string
	Found bool
}

// Missing is the RawValue of an alias the backend holds no data for.
var Missing = RawValue{}

// Raw wraps a found raw value.
func Raw(v string) RawValue {
	return RawValue{Value: v, Found: true}
}

// Memo is a value computed at most once.
type Memo struct {
	computed bool
	value    any
}

// Get returns the memoized value, computing it with fn on first use.
func (m *Memo) Get(fn func() any) any {
	if !m.computed {
		m.value = fn()
		m.computed = true
	}
	return m.value
}

// Computed reports whether the value has been computed.
func (m *Memo) Computed() bool { return m.computed }

// Property is the backend-agnostic PublishedProperty. It resolves its reference level against
// the declared level of its type and caches through the matching scope, falling back to the
// instance memo when no scope handle is available for that level.
type Property struct {
	pt        *PropertyType
	contentID int
	raw       RawValue
	preview   bool
	refLevel  CacheLevel
	scopes    Scopes
	backend   string

	fingerprint uint64
	hashed      bool

	inter  Memo
	object Memo
}

// PropertyOption configures a Property.
type PropertyOption func(*Property)

// WithReferenceLevel sets the level the caller asks values to be cached at.
// The default, CacheLevelUnknown, defers to the type's declared level.
func WithReferenceLevel(level CacheLevel) PropertyOption {
	return func(p *Property) {
		p.refLevel = level
	}
}

// WithScopes hands the property the cache tiers it may store into.
func WithScopes(scopes Scopes) PropertyOption {
	return func(p *Property) {
		p.scopes = scopes
	}
}

// WithBackendName names the backend in capability errors.
func WithBackendName(name string) PropertyOption {
	return func(p *Property) {
		p.backend = name
	}
}

// NewProperty creates a property of content contentID. A nil type is a programming error.
func NewProperty(pt *PropertyType, contentID int, raw RawValue, preview bool, opts ...PropertyOption) (*Property, error) {
	if pt == nil {
		return nil, &InvalidArgumentError{Op: "new property", Arg: "property type"}
	}
	if !raw.Found {
		raw.Value = ""
	}
	p := &Property{
		pt:        pt,
		contentID: contentID,
		raw:       raw,
		preview:   preview,
		backend:   "generic",
	}
	for _, opt := range opts {
		opt(p)
	}
	if !p.refLevel.IsValid() {
		return nil, &InvalidArgumentError{Op: "new property", Arg: "reference level"}
	}
	return p, nil
}

func (p *Property) Alias() string               { return p.pt.Alias() }
func (p *Property) PropertyType() *PropertyType { return p.pt }
func (p *Property) SourceValue() string         { return p.raw.Value }

// ContentID returns the id of the owning content item.
func (p *Property) ContentID() int { return p.contentID }

// Preview reports whether the property was built from draft data.
func (p *Property) Preview() bool { return p.preview }

// Level returns the level the object value is cached at.
func (p *Property) Level() CacheLevel {
	return EffectiveLevel(p.refLevel, p.pt.CacheLevel())
}

func (p *Property) HasValue() bool {
	return p.raw.Found && p.pt.HasValue(p.raw.Value)
}

func (p *Property) Value() any {
	return p.object.Get(func() any {
		if !p.raw.Found {
			return p.pt.DefaultValue()
		}
		level := p.Level()
		var graph ContentGraph
		if !CacheLevelContent.ShorterThan(level) {
			graph = p.scopes.Graph
		}
		convert := func() any {
			return p.pt.ConvertInterToObjectIn(graph, level, p.interValue(), p.preview)
		}
		if scope := p.scopes.For(level); scope != nil {
			return p.cached(scope, p.key(level, StageObject), convert)
		}
		return convert()
	})
}

// cached reads through scope. Once the owner's snapshot is replaced, process tier stores
// are skipped: the reload already dropped changed content and must not see it return.
func (p *Property) cached(scope *Scope, key Key, compute func() any) any {
	if scope == p.scopes.Process {
		return scope.GetOrComputeUnless(key, compute, p.scopes.retired)
	}
	return scope.GetOrCompute(key, compute)
}

func (p *Property) XPathValue() (any, error) {
	return nil, &CapabilityError{Backend: p.backend, Capability: "xpath value"}
}

// interValue is shared through the tier of the declared level since the intermediate value
// depends only on the source and the preview flag.
func (p *Property) interValue() any {
	return p.inter.Get(func() any {
		convert := func() any {
			return p.pt.ConvertSourceToInter(p.raw.Value, p.preview)
		}
		declared := p.pt.CacheLevel()
		if scope := p.scopes.For(declared); scope != nil {
			return p.cached(scope, p.key(declared, StageInter), convert)
		}
		return convert()
	})
}

func (p *Property) key(level CacheLevel, stage Stage) Key {
	if !p.hashed {
		p.fingerprint = Fingerprint(p.raw.Value)
		p.hashed = true
	}
	return Key{
		ContentID:   p.contentID,
		Alias:       p.pt.Alias(),
		Level:       level,
		Preview:     p.preview,
		Stage:       stage,
		Fingerprint: p.fingerprint,
	}
}
