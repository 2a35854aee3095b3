// Package cache provides a complexity-aware retention cache for derived
// artifacts such as tessellated strokes or laid-out text.
//
// Entries are bounded by count and by estimated memory. When room is needed
// the entry with the lowest retention score is evicted:
//
//	score = complexityWeight·log2(complexity+1)
//	      + accessWeight·log2(accessCount+1)·recency
//	      − memoryPenaltyWeight·sizeMB
//
// where recency decays linearly from 1 to 0 over the TTL window (or the
// recency horizon when TTL is disabled). Ties go to the least recently used
// entry. Expensive entries therefore outlive cheap ones even when accessed
// less recently, and large entries go first.
package cache

import (
	"context"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"

	"github.com/dshills/inkwell/internal/history/record"
	"github.com/dshills/inkwell/internal/metrics"
)

const bytesPerMB = 1 << 20

// maxComplexity caps stored complexity so every score stays finite.
const maxComplexity = 1e12

// entry is a cached value with its retention bookkeeping.
type entry[V any] struct {
	value       V
	complexity  float64
	size        int64
	ttl         time.Duration
	accessCount uint64
	createdAt   time.Time
	lastAccess  time.Time
}

func (e *entry[V]) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) >= e.ttl
}

// SetOptions describes a value being stored.
type SetOptions struct {
	// Complexity is the cost of regenerating the value.
	Complexity float64

	// MemorySize is the estimated size of the value in bytes.
	MemorySize int64

	// TTL overrides the cache TTL for this entry. Zero uses the cache TTL,
	// a negative value disables expiry for the entry.
	TTL time.Duration
}

// Cache is a bounded key/value cache with score-based eviction.
type Cache[K comparable, V any] struct {
	mu sync.Mutex

	cfg    Config
	lru    *simplelru.LRU[K, *entry[V]]
	memory int64

	registry *record.Registry
	logger   *zap.Logger
	metrics  *metrics.Collector
	now      func() time.Time

	// Stats (atomic for reads without holding the lock)
	hits       atomic.Uint64
	misses     atomic.Uint64
	evictions  atomic.Uint64
	rejections atomic.Uint64
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	registry *record.Registry
	logger   *zap.Logger
	metrics  *metrics.Collector
	now      func() time.Time
}

// WithLogger sets the cache logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithRegistry sets the kind registry consulted by ShouldCache.
func WithRegistry(r *record.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithClock sets the time source used for TTL and recency.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates a cache. Invalid configuration values fall back to their
// defaults.
func New[K comparable, V any](cfg Config, opts ...Option) *Cache[K, V] {
	o := options{
		registry: record.NewRegistry(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cache[K, V]{
		cfg:      cfg.sanitize(o.logger),
		registry: o.registry,
		logger:   o.logger,
		metrics:  o.metrics,
		now:      o.now,
	}

	// Capacity is one above the limit so the LRU never evicts on its own;
	// eviction is decided by score in makeRoomLocked.
	lru, err := simplelru.NewLRU[K, *entry[V]](c.cfg.MaxEntries+1, c.onRemove)
	if err != nil {
		// Only returned for a non-positive size, which sanitize rules out.
		panic(err)
	}
	c.lru = lru
	return c
}

func (c *Cache[K, V]) onRemove(_ K, e *entry[V]) {
	c.memory -= e.size
}

// Get returns the value for key and promotes it to most recently used.
// Expired entries are removed and reported absent.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V

	c.mu.Lock()
	now := c.now()
	e, ok := c.lru.Get(key)
	if ok && e.expired(now) {
		c.lru.Remove(key)
		c.evictions.Add(1)
		c.metrics.CacheEvicted(metrics.ReasonTTL, 1)
		ok = false
	}
	if !ok {
		c.observeLocked()
		c.mu.Unlock()
		c.misses.Add(1)
		c.metrics.CacheMiss()
		return zero, false
	}
	e.accessCount++
	e.lastAccess = now
	c.mu.Unlock()

	c.hits.Add(1)
	c.metrics.CacheHit()
	return e.value, true
}

// Has reports whether key holds a live entry, without promoting it.
func (c *Cache[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Peek(key)
	return ok && !e.expired(c.now())
}

// Set stores a value, evicting the lowest-scoring entries until both the
// count and memory limits admit it. A value larger than the whole memory
// budget is refused and the cache is left unchanged.
func (c *Cache[K, V]) Set(key K, value V, opts SetOptions) bool {
	if opts.MemorySize < 0 {
		opts.MemorySize = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if opts.MemorySize > c.cfg.MaxMemoryBytes {
		c.rejections.Add(1)
		c.metrics.CacheRejected()
		c.logger.Warn("cache entry exceeds memory budget, not stored",
			zap.Int64("size", opts.MemorySize),
			zap.Int64("budget", c.cfg.MaxMemoryBytes),
		)
		return false
	}

	now := c.now()
	c.lru.Remove(key)
	c.makeRoomLocked(now, opts.MemorySize)

	ttl := opts.TTL
	switch {
	case ttl == 0:
		ttl = c.cfg.TTL
	case ttl < 0:
		ttl = 0
	}

	c.lru.Add(key, &entry[V]{
		value:      value,
		complexity: clampComplexity(opts.Complexity),
		size:       opts.MemorySize,
		ttl:        ttl,
		createdAt:  now,
		lastAccess: now,
	})
	c.memory += opts.MemorySize
	c.observeLocked()
	return true
}

// Delete removes key. It returns false if the key was absent.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.lru.Remove(key)
	c.observeLocked()
	return ok
}

// Invalidate is Delete, for callers whose underlying record changed.
func (c *Cache[K, V]) Invalidate(key K) bool {
	return c.Delete(key)
}

// InvalidateAll removes every entry.
func (c *Cache[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.memory = 0
	c.observeLocked()
}

// ShouldCache reports whether a record is worth caching: its kind must be
// cacheable and its complexity at least the configured threshold.
func (c *Cache[K, V]) ShouldCache(rec *record.Record) bool {
	if rec == nil || !c.registry.Has(rec.Kind, record.CapCache) {
		return false
	}
	c.mu.Lock()
	threshold := c.cfg.ComplexityThreshold
	c.mu.Unlock()
	return c.registry.Complexity(rec) >= threshold
}

// Complexity returns the registry complexity of a record.
func (c *Cache[K, V]) Complexity(rec *record.Record) float64 {
	return c.registry.Complexity(rec)
}

// Tick runs the periodic cleanup: expired entries are removed, then entries
// are evicted by score while memory stays above 90% of the budget. It
// returns the number of entries removed.
func (c *Cache[K, V]) Tick(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	expired := 0
	for _, key := range c.lru.Keys() {
		if e, ok := c.lru.Peek(key); ok && e.expired(now) {
			c.lru.Remove(key)
			expired++
		}
	}
	if expired > 0 {
		c.metrics.CacheEvicted(metrics.ReasonTTL, expired)
	}

	swept := 0
	high := c.cfg.MaxMemoryBytes * 9 / 10
	for c.memory > high && c.evictOneLocked(now) {
		swept++
	}
	if swept > 0 {
		c.metrics.CacheEvicted(metrics.ReasonSweep, swept)
	}

	removed := expired + swept
	c.evictions.Add(uint64(removed))
	c.observeLocked()
	if removed > 0 {
		c.logger.Debug("cache cleanup",
			zap.Int("expired", expired),
			zap.Int("swept", swept),
			zap.Int64("memory", c.memory),
		)
	}
	return removed
}

// DeriveFunc produces the value for a key during Prewarm.
type DeriveFunc[K comparable, V any] func(ctx context.Context, key K) (V, SetOptions, error)

// Prewarm derives and stores values for keys not already cached, one at a
// time. It checks ctx between keys and yields the processor after each, so
// it can run in idle time without starving the host. It returns the number
// of values stored and ctx.Err() if cancelled.
func (c *Cache[K, V]) Prewarm(ctx context.Context, keys []K, derive DeriveFunc[K, V]) (int, error) {
	stored := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		if c.Has(key) {
			continue
		}

		value, opts, err := derive(ctx, key)
		if err != nil {
			c.logger.Warn("cache prewarm: derive failed", zap.Any("key", key), zap.Error(err))
			continue
		}
		if c.Set(key, value, opts) {
			stored++
		}
		runtime.Gosched()
	}
	return stored, nil
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// MemoryUsage returns the summed size of all entries.
func (c *Cache[K, V]) MemoryUsage() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memory
}

// Keys returns the keys from least to most recently used.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Config returns the cache configuration.
func (c *Cache[K, V]) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Resize applies new limits and weights, evicting by score until the cache
// fits them.
func (c *Cache[K, V]) Resize(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg = cfg.sanitize(c.logger)
	now := c.now()
	n := 0
	for c.lru.Len() > c.cfg.MaxEntries || c.memory > c.cfg.MaxMemoryBytes {
		if !c.evictOneLocked(now) {
			break
		}
		n++
	}
	if n > 0 {
		c.evictions.Add(uint64(n))
		c.metrics.CacheEvicted(metrics.ReasonCount, n)
	}
	c.lru.Resize(c.cfg.MaxEntries + 1)
	c.observeLocked()
}

// Stats holds cache statistics.
type Stats struct {
	Entries     int
	MaxEntries  int
	MemoryBytes int64
	BudgetBytes int64
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Rejections  uint64
	HitRate     float64
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:     c.lru.Len(),
		MaxEntries:  c.cfg.MaxEntries,
		MemoryBytes: c.memory,
		BudgetBytes: c.cfg.MaxMemoryBytes,
		Hits:        hits,
		Misses:      misses,
		Evictions:   c.evictions.Load(),
		Rejections:  c.rejections.Load(),
		HitRate:     hitRate,
	}
}

// makeRoomLocked evicts until one more entry of the given size fits.
func (c *Cache[K, V]) makeRoomLocked(now time.Time, size int64) {
	byCount, byMemory := 0, 0
	for {
		overCount := c.lru.Len() >= c.cfg.MaxEntries
		if !overCount && c.memory+size <= c.cfg.MaxMemoryBytes {
			break
		}
		if !c.evictOneLocked(now) {
			break
		}
		if overCount {
			byCount++
		} else {
			byMemory++
		}
	}
	c.metrics.CacheEvicted(metrics.ReasonCount, byCount)
	c.metrics.CacheEvicted(metrics.ReasonMemory, byMemory)
	c.evictions.Add(uint64(byCount + byMemory))
}

// evictOneLocked removes the lowest-scoring entry. Expired entries go first.
// Keys are scanned from least recently used, so ties evict the older entry.
// When no score compares lower, the least recently used entry goes. It
// reports false only when the cache is empty.
func (c *Cache[K, V]) evictOneLocked(now time.Time) bool {
	var (
		victim K
		found  bool
		best   = math.Inf(1)
	)
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if e.expired(now) {
			victim, found = key, true
			break
		}
		if s := c.scoreLocked(e, now); s < best {
			victim, best, found = key, s, true
		}
	}
	if !found {
		key, _, ok := c.lru.GetOldest()
		if !ok {
			return false
		}
		victim = key
	}
	return c.lru.Remove(victim)
}

// clampComplexity maps NaN and negatives to zero and caps large values.
func clampComplexity(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, maxComplexity)
}

func (c *Cache[K, V]) scoreLocked(e *entry[V], now time.Time) float64 {
	horizon := c.cfg.TTL
	if horizon <= 0 {
		horizon = c.cfg.RecencyHorizon
	}
	recency := 1.0
	if horizon > 0 {
		recency = 1 - float64(now.Sub(e.lastAccess))/float64(horizon)
		recency = math.Min(math.Max(recency, 0), 1)
	}
	return c.cfg.ComplexityWeight*math.Log2(e.complexity+1) +
		c.cfg.AccessWeight*math.Log2(float64(e.accessCount)+1)*recency -
		c.cfg.MemoryPenaltyWeight*float64(e.size)/bytesPerMB
}

func (c *Cache[K, V]) observeLocked() {
	c.metrics.SetCache(c.lru.Len(), c.memory)
}
