// Package monitoring aggregates counters from the cache tiers and the
// reconciliation engine into a single snapshot for the status command
// and the HTTP status endpoint.
package monitoring

import (
	"time"

	"github.com/sells-group/marketflow-cli/internal/cache"
	"github.com/sells-group/marketflow-cli/internal/reconcile"
)

// Snapshot is a point-in-time view of the process's operational state.
type Snapshot struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Cache       cache.ServiceStats    `json:"cache"`
	Engine      reconcile.EngineStats `json:"engine"`
}

// MemoryHitRate is the fraction of reads served from the memory tier.
func (s Snapshot) MemoryHitRate() float64 {
	total := s.Cache.MemoryHits + s.Cache.MemoryMisses
	if total == 0 {
		return 0
	}
	return float64(s.Cache.MemoryHits) / float64(total)
}

// StoreHitRate is the fraction of store reads that hit.
func (s Snapshot) StoreHitRate() float64 {
	total := s.Cache.Store.Hits + s.Cache.Store.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Cache.Store.Hits) / float64(total)
}

// Collector snapshots the live components it is given.
type Collector struct {
	cache  *cache.Service
	engine *reconcile.Engine
}

// NewCollector creates a collector. Either component may be nil.
func NewCollector(svc *cache.Service, engine *reconcile.Engine) *Collector {
	return &Collector{cache: svc, engine: engine}
}

// Snapshot gathers current counters from all components.
func (c *Collector) Snapshot() Snapshot {
	snap := Snapshot{GeneratedAt: time.Now().UTC()}
	if c.cache != nil {
		snap.Cache = c.cache.Stats()
	}
	if c.engine != nil {
		snap.Engine = c.engine.Stats()
	}
	return snap
}
