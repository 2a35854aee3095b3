// Package metrics exposes Prometheus collectors for the history and cache
// components.
//
// A Collector owns its own registry; nothing is registered globally. Every
// method is safe to call on a nil *Collector so components can run without
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label values used by the collectors.
const (
	StackUndo = "undo"
	StackRedo = "redo"

	ReasonCount  = "count"
	ReasonMemory = "memory"
	ReasonTTL    = "ttl"
	ReasonSweep  = "sweep"

	OpExecute = "execute"
	OpUndo    = "undo"
	OpRedo    = "redo"
)

// Collector holds all metrics for one engine instance.
type Collector struct {
	registry *prometheus.Registry

	// History metrics
	HistoryRecords        *prometheus.GaugeVec
	HistoryMemoryBytes    prometheus.Gauge
	HistoryEvictions      *prometheus.CounterVec
	HistoryRecalculations prometheus.Counter

	// Ledger metrics
	BatchOperations     *prometheus.CounterVec
	BatchIntegrityFails prometheus.Counter
	TransformOperations *prometheus.CounterVec

	// Cache metrics
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CacheEvictions   *prometheus.CounterVec
	CacheRejections  prometheus.Counter
	CacheEntries     prometheus.Gauge
	CacheMemoryBytes prometheus.Gauge
}

// New creates a collector with a fresh registry.
func New(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HistoryRecords: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "history_records",
				Help:      "Number of records held in each history stack",
			},
			[]string{"stack"},
		),
		HistoryMemoryBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "history_memory_bytes",
				Help:      "Estimated memory held by the undo and redo stacks",
			},
		),
		HistoryEvictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_evictions_total",
				Help:      "Records evicted from history",
			},
			[]string{"stack", "reason"},
		),
		HistoryRecalculations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_recalculations_total",
				Help:      "Full recomputations of history memory usage",
			},
		),
		BatchOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_operations_total",
				Help:      "Batch ledger operations",
			},
			[]string{"op"},
		),
		BatchIntegrityFails: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_integrity_failures_total",
				Help:      "Batch undo or redo attempts with a missing snapshot",
			},
		),
		TransformOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transform_operations_total",
				Help:      "Transform ledger operations",
			},
			[]string{"op"},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Retention cache hits",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Retention cache misses",
			},
		),
		CacheEvictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evictions_total",
				Help:      "Retention cache evictions",
			},
			[]string{"reason"},
		),
		CacheRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_rejections_total",
				Help:      "Cache entries refused because they exceed the memory budget",
			},
		),
		CacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Live retention cache entries",
			},
		),
		CacheMemoryBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_memory_bytes",
				Help:      "Estimated memory held by the retention cache",
			},
		),
	}

	registry.MustRegister(
		c.HistoryRecords,
		c.HistoryMemoryBytes,
		c.HistoryEvictions,
		c.HistoryRecalculations,
		c.BatchOperations,
		c.BatchIntegrityFails,
		c.TransformOperations,
		c.CacheHits,
		c.CacheMisses,
		c.CacheEvictions,
		c.CacheRejections,
		c.CacheEntries,
		c.CacheMemoryBytes,
	)

	return c
}

// Registry returns the registry the collectors are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Gatherer returns the registry as a prometheus.Gatherer.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return prometheus.NewRegistry()
	}
	return c.registry
}

// SetHistory records the current stack sizes and memory usage.
func (c *Collector) SetHistory(undoLen, redoLen int, bytes int64) {
	if c == nil {
		return
	}
	c.HistoryRecords.WithLabelValues(StackUndo).Set(float64(undoLen))
	c.HistoryRecords.WithLabelValues(StackRedo).Set(float64(redoLen))
	c.HistoryMemoryBytes.Set(float64(bytes))
}

// HistoryEvicted counts records evicted from a stack.
func (c *Collector) HistoryEvicted(stack, reason string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.HistoryEvictions.WithLabelValues(stack, reason).Add(float64(n))
}

// HistoryRecalculated counts a full memory recomputation.
func (c *Collector) HistoryRecalculated() {
	if c == nil {
		return
	}
	c.HistoryRecalculations.Inc()
}

// Batch counts a batch ledger operation.
func (c *Collector) Batch(op string) {
	if c == nil {
		return
	}
	c.BatchOperations.WithLabelValues(op).Inc()
}

// BatchIntegrityFailure counts a missing incremental snapshot.
func (c *Collector) BatchIntegrityFailure() {
	if c == nil {
		return
	}
	c.BatchIntegrityFails.Inc()
}

// Transform counts a transform ledger operation.
func (c *Collector) Transform(op string) {
	if c == nil {
		return
	}
	c.TransformOperations.WithLabelValues(op).Inc()
}

// CacheHit counts a cache hit.
func (c *Collector) CacheHit() {
	if c == nil {
		return
	}
	c.CacheHits.Inc()
}

// CacheMiss counts a cache miss.
func (c *Collector) CacheMiss() {
	if c == nil {
		return
	}
	c.CacheMisses.Inc()
}

// CacheEvicted counts cache evictions for a reason.
func (c *Collector) CacheEvicted(reason string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.CacheEvictions.WithLabelValues(reason).Add(float64(n))
}

// CacheRejected counts a refused cache entry.
func (c *Collector) CacheRejected() {
	if c == nil {
		return
	}
	c.CacheRejections.Inc()
}

// SetCache records the current cache size.
func (c *Collector) SetCache(entries int, bytes int64) {
	if c == nil {
		return
	}
	c.CacheEntries.Set(float64(entries))
	c.CacheMemoryBytes.Set(float64(bytes))
}
