package publishedcontent

import "sync/atomic"

// Metrics receives cache tier events.
type Metrics interface {
	// Hit is called when a tier returns a previously computed value.
	Hit(tier Tier)

	// Miss is called when a tier has to compute a value.
	Miss(tier Tier)

	// Invalidate is called with the number of entries dropped from a tier.
	Invalidate(tier Tier, n int)
}

// NoopMetrics ignores all events.
type NoopMetrics struct{}

func (NoopMetrics) Hit(Tier)             {}
func (NoopMetrics) Miss(Tier)            {}
func (NoopMetrics) Invalidate(Tier, int) {}

// TierStats is a point-in-time copy of one tier's counters.
type TierStats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Invalidated int64 `json:"invalidated"`
}

type tierCounters struct {
	hits        atomic.Int64
	misses      atomic.Int64
	invalidated atomic.Int64
}

// CountingMetrics counts events per tier with atomic counters.
type CountingMetrics struct {
	tiers [tierCount]tierCounters
}

// NewCountingMetrics creates a zeroed counter set.
func NewCountingMetrics() *CountingMetrics {
	return &CountingMetrics{}
}

func (m *CountingMetrics) Hit(tier Tier) {
	if tier.valid() {
		m.tiers[tier].hits.Add(1)
	}
}

func (m *CountingMetrics) Miss(tier Tier) {
	if tier.valid() {
		m.tiers[tier].misses.Add(1)
	}
}

func (m *CountingMetrics) Invalidate(tier Tier, n int) {
	if tier.valid() {
		m.tiers[tier].invalidated.Add(int64(n))
	}
}

// Snapshot returns the counters keyed by tier name.
func (m *CountingMetrics) Snapshot() map[string]TierStats {
	out := make(map[string]TierStats, tierCount)
	for i := range m.tiers {
		out[Tier(i).String()] = TierStats{
			Hits:        m.tiers[i].hits.Load(),
			Misses:      m.tiers[i].misses.Load(),
			Invalidated: m.tiers[i].invalidated.Load(),
		}
	}
	return out
}
