package publishedcontent

import (
	"fmt"
	"hash/fnv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Tier names one of the nested cache lifetimes.
type Tier int

const (
	// TierProcess lives for the application lifetime.
	TierProcess Tier = iota
	// TierSnapshot lives until its snapshot generation is replaced.
	TierSnapshot
	// TierRequest lives until the request view is closed.
	TierRequest

	tierCount = 3
)

func (t Tier) valid() bool {
	return t >= 0 && t < tierCount
}

func (t Tier) String() string {
	switch t {
	case TierProcess:
		return "process"
	case TierSnapshot:
		return "snapshot"
	case TierRequest:
		return "request"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// Stage distinguishes the intermediate and object values of one property.
type Stage uint8

const (
	StageInter Stage = iota + 1
	StageObject
)

// Key identifies a cached conversion result.
type Key struct {
	ContentID int
	Alias     string
	Level     CacheLevel
	Preview   bool
	Stage     Stage
	// Fingerprint hashes the raw source so a long-lived tier never serves a value
	// computed from different raw data.
	Fingerprint uint64
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s/%s/%t/%d/%x", k.ContentID, k.Alias, k.Level, k.Preview, k.Stage, k.Fingerprint)
}

// Fingerprint hashes a raw source value for use in a Key.
func Fingerprint(source string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(source))
	return h.Sum64()
}

// Scope is one cache tier. It is safe for concurrent use: lookups share a read lock and
// concurrent misses on one key compute the value once.
type Scope struct {
	tier    Tier
	metrics Metrics

	mu       sync.RWMutex
	entries  map[Key]any
	closed   bool
	teardown []func()

	group singleflight.Group
}

// ScopeOption configures a Scope.
type ScopeOption func(*Scope)

// WithScopeMetrics reports hits and misses to m.
func WithScopeMetrics(m Metrics) ScopeOption {
	return func(s *Scope) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewScope creates an empty, open scope for the given tier.
func NewScope(tier Tier, opts ...ScopeOption) *Scope {
	s := &Scope{
		tier:    tier,
		metrics: NoopMetrics{},
		entries: make(map[Key]any),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tier returns the scope's tier.
func (s *Scope) Tier() Tier { return s.tier }

// Get returns a cached value.
func (s *Scope) Get(key Key) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

// Set stores a value. It is a no-op on a closed scope.
func (s *Scope) Set(key Key, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.entries[key] = value
}

// GetOrCompute returns the cached value for key, computing and storing it on a miss.
// A closed scope still computes but no longer stores.
func (s *Scope) GetOrCompute(key Key, compute func() any) any {
	return s.GetOrComputeUnless(key, compute, nil)
}

// GetOrComputeUnless is GetOrCompute with a store guard: the computed value is not stored
// when skip reports true. skip is checked before computing and again under the scope lock
// before storing.
func (s *Scope) GetOrComputeUnless(key Key, compute func() any, skip func() bool) any {
	if v, ok := s.Get(key); ok {
		s.metrics.Hit(s.tier)
		return v
	}

	if skip != nil && skip() {
		s.metrics.Miss(s.tier)
		return compute()
	}

	v, _, _ := s.group.Do(key.String(), func() (any, error) {
		// another caller may have stored it between our read and the flight
		if v, ok := s.Get(key); ok {
			return v, nil
		}
		s.metrics.Miss(s.tier)
		v := compute()
		s.setUnless(key, v, skip)
		return v, nil
	})
	return v
}

func (s *Scope) setUnless(key Key, value any, skip func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || (skip != nil && skip()) {
		return
	}
	s.entries[key] = value
}

// Len returns the number of cached entries.
func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// InvalidateContent drops every entry of the given content ids and returns how many were dropped.
func (s *Scope) InvalidateContent(ids ...int) int {
	if len(ids) == 0 {
		return 0
	}
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	s.mu.Lock()
	n := 0
	for key := range s.entries {
		if _, ok := set[key.ContentID]; ok {
			delete(s.entries, key)
			n++
		}
	}
	s.mu.Unlock()

	if n > 0 {
		s.metrics.Invalidate(s.tier, n)
	}
	return n
}

// Clear drops every entry and returns how many were dropped.
func (s *Scope) Clear() int {
	s.mu.Lock()
	n := len(s.entries)
	s.entries = make(map[Key]any)
	s.mu.Unlock()

	if n > 0 {
		s.metrics.Invalidate(s.tier, n)
	}
	return n
}

// OnTeardown registers fn to run once when the scope is closed.
func (s *Scope) OnTeardown(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		go fn()
		return
	}
	s.teardown = append(s.teardown, fn)
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close clears the scope and runs its teardown hooks. Later calls do nothing.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	n := len(s.entries)
	s.entries = make(map[Key]any)
	hooks := s.teardown
	s.teardown = nil
	s.mu.Unlock()

	if n > 0 {
		s.metrics.Invalidate(s.tier, n)
	}
	for _, fn := range hooks {
		fn()
	}
}

// Scopes carries the scope handles a property may cache into. Any handle may be nil.
type Scopes struct {
	Process  *Scope
	Snapshot *Scope
	Request  *Scope

	// Graph resolves references to other content within the owner's snapshot. Set by views.
	Graph ContentGraph
}

// retired reports whether the owner's snapshot has been replaced. Its tier is closed on reload.
func (s Scopes) retired() bool {
	return s.Snapshot != nil && s.Snapshot.Closed()
}

// For returns the scope backing a cache level, or nil when the level has no shared tier
// (None and Content live in the property instance).
func (s Scopes) For(level CacheLevel) *Scope {
	switch level {
	case CacheLevelRequest:
		return s.Request
	case CacheLevelSnapshot:
		return s.Snapshot
	case CacheLevelElements:
		return s.Process
	default:
		return nil
	}
}
