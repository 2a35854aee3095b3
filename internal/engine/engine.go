package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/inkwell/internal/cache"
	"github.com/dshills/inkwell/internal/config"
	"github.com/dshills/inkwell/internal/history"
	"github.com/dshills/inkwell/internal/history/batch"
	"github.com/dshills/inkwell/internal/history/memory"
	"github.com/dshills/inkwell/internal/history/record"
	"github.com/dshills/inkwell/internal/history/transform"
	"github.com/dshills/inkwell/internal/logging"
	"github.com/dshills/inkwell/internal/metrics"
	"github.com/dshills/inkwell/internal/notify"
)

// DeriveFunc produces the cached artifact for a record during Prewarm.
type DeriveFunc func(ctx context.Context, rec *record.Record) (any, cache.SetOptions, error)

// Stats summarizes every component.
type Stats struct {
	History       history.Stats
	Batches       int
	SnapshotBytes int64
	Transforms    int
	Cache         cache.Stats
}

// Engine is the facade over the edit history and the retention cache.
// It wires the store, both ledgers, the cache and the notifier together
// behind one API.
//
// All operations are safe for concurrent use.
type Engine struct {
	mu     sync.RWMutex
	cfg    config.Config
	closed bool

	// Core components
	store      *history.Store
	batches    *batch.Ledger
	transforms *transform.Ledger
	cache      *cache.Cache[record.ID, any]
	notifier   *notify.Notifier

	// Shared dependencies
	logger   *zap.Logger
	metrics  *metrics.Collector
	registry *record.Registry
	now      func() time.Time

	transactional bool
}

// invalidatingStore drops the cached artifact of every record updated
// through it.
type invalidatingStore struct {
	*history.Store
	cache *cache.Cache[record.ID, any]
}

func (s invalidatingStore) Update(r *record.Record) bool {
	if !s.Store.Update(r) {
		return false
	}
	s.cache.Invalidate(r.ID)
	return true
}

// New creates an Engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{
		cfg:      config.Default(),
		logger:   zap.NewNop(),
		registry: record.NewRegistry(),
		now:      time.Now,
	}

	// Apply options to get configuration
	for _, opt := range opts {
		opt(e)
	}

	if e.notifier == nil {
		e.notifier = notify.New(notify.WithLogger(logging.Named(e.logger, "notify")))
	}
	e.cfg = config.Sanitize(e.cfg, e.logger)

	e.store = history.NewStore(e.cfg.History(),
		history.WithLogger(logging.Named(e.logger, "history")),
		history.WithMetrics(e.metrics),
		history.WithEmitter(e.notifier),
		history.WithEstimator(memory.NewEstimator(e.cfg.Estimator())),
		history.WithClock(e.now),
	)
	e.batches = batch.NewLedger(e.store, e.cfg.Batch(),
		batch.WithLogger(logging.Named(e.logger, "batch")),
		batch.WithMetrics(e.metrics),
		batch.WithClock(e.now),
	)
	e.cache = cache.New[record.ID, any](e.cfg.CacheSettings(),
		cache.WithLogger(logging.Named(e.logger, "cache")),
		cache.WithMetrics(e.metrics),
		cache.WithRegistry(e.registry),
		cache.WithClock(e.now),
	)
	e.transforms = transform.NewLedger(invalidatingStore{e.store, e.cache}, e.cfg.MaxBatchOperations,
		transform.WithLogger(logging.Named(e.logger, "transform")),
		transform.WithMetrics(e.metrics),
		transform.WithRegistry(e.registry),
		transform.WithClock(e.now),
	)

	return e
}

// ============================================================================
// History
// ============================================================================

// Add records a new edit. It always succeeds.
func (e *Engine) Add(r *record.Record) {
	e.store.Add(r)
}

// Undo reverts the most recent edit and returns it.
func (e *Engine) Undo() (*record.Record, bool) {
	return e.store.Undo()
}

// Redo reapplies the most recently undone edit and returns it.
func (e *Engine) Redo() (*record.Record, bool) {
	return e.store.Redo()
}

// RemoveByID removes a record from either stack and drops its cache entry.
func (e *Engine) RemoveByID(id record.ID) bool {
	ok := e.store.RemoveByID(id)
	if ok {
		e.cache.Invalidate(id)
	}
	return ok
}

// UpdateAction replaces the stored record with the same ID and drops its
// cache entry.
func (e *Engine) UpdateAction(r *record.Record) bool {
	return invalidatingStore{e.store, e.cache}.Update(r)
}

// GetAllRecords returns a copy of the applied records, oldest first.
func (e *Engine) GetAllRecords() record.List {
	return e.store.Records()
}

// Get returns a copy of the record with the given ID.
func (e *Engine) Get(id record.ID) (*record.Record, bool) {
	return e.store.Get(id)
}

// CanUndo reports whether there is an edit to undo.
func (e *Engine) CanUndo() bool {
	return e.store.CanUndo()
}

// CanRedo reports whether there is an edit to redo.
func (e *Engine) CanRedo() bool {
	return e.store.CanRedo()
}

// UndoCount returns the number of undoable edits.
func (e *Engine) UndoCount() int {
	return e.store.UndoCount()
}

// RedoCount returns the number of redoable edits.
func (e *Engine) RedoCount() int {
	return e.store.RedoCount()
}

// PeekUndo returns info about the next edit to undo.
func (e *Engine) PeekUndo() (history.EntryInfo, bool) {
	return e.store.PeekUndo()
}

// PeekRedo returns info about the next edit to redo.
func (e *Engine) PeekRedo() (history.EntryInfo, bool) {
	return e.store.PeekRedo()
}

// MemoryUsage returns the estimated size of the history in bytes.
func (e *Engine) MemoryUsage() int64 {
	return e.store.MemoryUsage()
}

// ClearHistory drops all history, batches, transforms and cached entries.
func (e *Engine) ClearHistory() {
	e.batches.Clear()
	e.transforms.Clear()
	e.store.Clear()
	e.cache.InvalidateAll()
}

// ============================================================================
// Batches
// ============================================================================

// ExecuteBatch removes removedIDs and adds added as one undoable unit.
func (e *Engine) ExecuteBatch(kind batch.Kind, removedIDs []record.ID, added record.List, description string) batch.ID {
	e.hold()
	defer e.release()

	id := e.batches.Execute(kind, removedIDs, added, description)
	for _, rid := range removedIDs {
		e.cache.Invalidate(rid)
	}
	return id
}

// UndoBatch reverts a batch: its added records are removed and its removed
// records restored.
func (e *Engine) UndoBatch(id batch.ID) batch.UndoResult {
	e.hold()
	defer e.release()

	res := e.batches.Undo(id)
	if res.Success {
		for _, rid := range res.RemovedIDs {
			e.cache.Invalidate(rid)
		}
	}
	return res
}

// RedoBatch reapplies an undone batch.
func (e *Engine) RedoBatch(id batch.ID) bool {
	e.hold()
	defer e.release()

	info, ok := e.batches.Get(id)
	if !e.batches.Redo(id) {
		return false
	}
	if ok {
		for _, rid := range info.RemovedIDs {
			e.cache.Invalidate(rid)
		}
	}
	return true
}

// CanUndoBatch reports whether a batch can be undone.
func (e *Engine) CanUndoBatch(id batch.ID) bool {
	return e.batches.CanUndo(id)
}

// CanRedoBatch reports whether a batch can be redone.
func (e *Engine) CanRedoBatch(id batch.ID) bool {
	return e.batches.CanRedo(id)
}

// Batch returns info about a batch.
func (e *Engine) Batch(id batch.ID) (batch.Info, bool) {
	return e.batches.Get(id)
}

func (e *Engine) hold() {
	if e.transactional {
		e.notifier.Hold()
	}
}

func (e *Engine) release() {
	if e.transactional {
		e.notifier.Release()
	}
}

// ============================================================================
// Transforms
// ============================================================================

// RecordTransform logs a move/scale/rotate gesture and applies its after
// state.
func (e *Engine) RecordTransform(before, after record.List) (transform.ID, bool) {
	return e.transforms.Record(before, after)
}

// UndoTransform restores the before state of the latest gesture.
func (e *Engine) UndoTransform() bool {
	return e.transforms.UndoTransform()
}

// CanUndoTransform reports whether a gesture can be undone.
func (e *Engine) CanUndoTransform() bool {
	return e.transforms.CanUndoTransform()
}

// ============================================================================
// Cache
// ============================================================================

// CacheGet returns the cached artifact for a record.
func (e *Engine) CacheGet(id record.ID) (any, bool) {
	return e.cache.Get(id)
}

// CacheSet stores an artifact. It returns false if the entry cannot fit the
// cache budget.
func (e *Engine) CacheSet(id record.ID, value any, opts cache.SetOptions) bool {
	return e.cache.Set(id, value, opts)
}

// CacheHas reports whether an artifact is cached.
func (e *Engine) CacheHas(id record.ID) bool {
	return e.cache.Has(id)
}

// CacheDelete drops a cached artifact.
func (e *Engine) CacheDelete(id record.ID) bool {
	return e.cache.Delete(id)
}

// ShouldCache reports whether a record is expensive enough to cache.
func (e *Engine) ShouldCache(r *record.Record) bool {
	return e.cache.ShouldCache(r)
}

// Complexity returns the regeneration cost of a record's artifact.
func (e *Engine) Complexity(r *record.Record) float64 {
	return e.cache.Complexity(r)
}

// Tick runs cache cleanup as of now and returns the number of entries
// removed.
func (e *Engine) Tick(now time.Time) int {
	return e.cache.Tick(now)
}

// Prewarm derives cache entries for the applied records worth caching,
// most complex first. It stops when ctx is done and returns the number of
// entries stored.
func (e *Engine) Prewarm(ctx context.Context, derive DeriveFunc) (int, error) {
	if derive == nil {
		return 0, ErrNoDerive
	}
	if e.isClosed() {
		return 0, ErrClosed
	}

	byID := make(map[record.ID]*record.Record)
	type candidate struct {
		id         record.ID
		complexity float64
	}
	var candidates []candidate
	for _, r := range e.store.Records() {
		if !e.cache.ShouldCache(r) {
			continue
		}
		byID[r.ID] = r
		candidates = append(candidates, candidate{id: r.ID, complexity: e.cache.Complexity(r)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].complexity > candidates[j].complexity
	})

	keys := make([]record.ID, len(candidates))
	for i, c := range candidates {
		keys[i] = c.id
	}

	n, err := e.cache.Prewarm(ctx, keys, func(ctx context.Context, id record.ID) (any, cache.SetOptions, error) {
		r := byID[id]
		value, opts, err := derive(ctx, r)
		if err == nil && opts.Complexity == 0 {
			opts.Complexity = e.cache.Complexity(r)
		}
		return value, opts, err
	})
	e.logger.Debug("prewarm finished",
		zap.Int("candidates", len(keys)),
		zap.Int("stored", n),
		zap.Error(err),
	)
	return n, err
}

// ============================================================================
// Events
// ============================================================================

// Subscribe registers an observer for every event.
func (e *Engine) Subscribe(observer notify.Observer) *notify.Subscription {
	return e.notifier.Subscribe(observer)
}

// SubscribeTopic registers an observer for one topic.
func (e *Engine) SubscribeTopic(topic notify.Topic, observer notify.Observer) *notify.Subscription {
	return e.notifier.SubscribeTopic(topic, observer)
}

// ============================================================================
// Configuration
// ============================================================================

// Config returns the active configuration.
func (e *Engine) Config() config.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// ApplyConfig sanitizes cfg and applies it to every component. New limits
// take effect immediately.
func (e *Engine) ApplyConfig(cfg config.Config) {
	cfg = config.Sanitize(cfg, e.logger)

	e.mu.Lock()
	prev := e.cfg
	e.cfg = cfg
	e.mu.Unlock()

	if cfg.Estimator() != prev.Estimator() {
		e.store.SetEstimator(memory.NewEstimator(cfg.Estimator()))
	}
	e.store.SetConfig(cfg.History())
	e.batches.SetConfig(cfg.Batch())
	e.transforms.SetMaxOperations(cfg.MaxBatchOperations)
	e.cache.Resize(cfg.CacheSettings())

	e.logger.Info("config applied",
		zap.Int("maxHistoryEntries", cfg.MaxHistoryEntries),
		zap.Int64("maxMemoryBytes", cfg.MaxMemoryBytes),
		zap.Int("cacheMaxEntries", cfg.Cache.MaxEntries),
	)
}

// WatchConfig reloads path whenever it changes and applies the result. It
// blocks until ctx is done.
func (e *Engine) WatchConfig(ctx context.Context, path string) error {
	if e.isClosed() {
		return ErrClosed
	}
	w, err := config.NewWatcher(path, e.ApplyConfig,
		config.WithWatchLogger(logging.Named(e.logger, "config")),
	)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// ============================================================================
// Lifecycle
// ============================================================================

// Stats returns a summary of every component.
func (e *Engine) Stats() Stats {
	return Stats{
		History:       e.store.Stats(),
		Batches:       e.batches.Len(),
		SnapshotBytes: e.batches.SnapshotBytes(),
		Transforms:    e.transforms.Len(),
		Cache:         e.cache.Stats(),
	}
}

// Metrics returns the metrics collector, which may be nil.
func (e *Engine) Metrics() *metrics.Collector {
	return e.metrics
}

// Close stops event delivery. History operations keep working but no
// longer notify observers.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.notifier.Close()
}

func (e *Engine) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}
