package history

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/inkwell/internal/history/memory"
	"github.com/dshills/inkwell/internal/history/record"
	"github.com/dshills/inkwell/internal/metrics"
	"github.com/dshills/inkwell/internal/notify"
)

// entry wraps a record with its accounted size.
type entry struct {
	rec       *record.Record
	size      int64
	timestamp time.Time
}

// Store manages the linear undo/redo stacks of edit records.
//
// The undo stack holds applied records, most recent last; it is the current
// record set. The redo stack holds undone records, most recent last.
// Appending to the undo stack through Add always clears the redo stack.
type Store struct {
	mu sync.Mutex

	undoStack []*entry
	redoStack []*entry

	cfg       Config
	estimator memory.Estimator

	// Incrementally maintained estimate of both stacks
	memoryUsage int64
	opCount     uint64

	logger  *zap.Logger
	metrics *metrics.Collector
	emitter notify.Emitter
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithEmitter sets where change events are emitted.
func WithEmitter(e notify.Emitter) Option {
	return func(s *Store) {
		s.emitter = e
	}
}

// WithEstimator sets the memory estimator.
func WithEstimator(e memory.Estimator) Option {
	return func(s *Store) {
		s.estimator = e
	}
}

// WithClock sets the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a new store. Invalid configuration values fall back to
// their defaults.
func NewStore(cfg Config, opts ...Option) *Store {
	s := &Store{
		estimator: memory.NewEstimator(memory.DefaultConfig()),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg = cfg.sanitize(s.logger)
	return s
}

// Add appends a record to the undo stack and clears the redo stack.
// Add always succeeds, even for a record larger than the memory budget.
func (s *Store) Add(r *record.Record) {
	if r == nil {
		return
	}

	s.mu.Lock()
	s.undoStack = append(s.undoStack, s.newEntryLocked(r))
	s.clearRedoLocked()
	s.enforceCountLimitLocked()
	s.tickLocked()
	ev := s.historyEventLocked()
	s.mu.Unlock()

	s.emit(ev)
}

// Restore appends records directly to the undo stack without clearing the
// redo stack. It is used to reinstate records removed by a composite edit.
func (s *Store) Restore(records ...*record.Record) {
	if len(records) == 0 {
		return
	}

	s.mu.Lock()
	for _, r := range records {
		if r == nil {
			continue
		}
		s.undoStack = append(s.undoStack, s.newEntryLocked(r))
	}
	s.enforceCountLimitLocked()
	s.tickLocked()
	ev := s.historyEventLocked()
	s.mu.Unlock()

	s.emit(ev)
}

// Undo moves the most recent record from the undo stack to the redo stack
// and returns a copy of it. It returns false when there is nothing to undo.
func (s *Store) Undo() (*record.Record, bool) {
	s.mu.Lock()
	if len(s.undoStack) == 0 {
		s.mu.Unlock()
		s.logger.Debug("undo on empty history")
		return nil, false
	}

	e := s.undoStack[len(s.undoStack)-1]
	s.undoStack = s.undoStack[:len(s.undoStack)-1]
	s.redoStack = append(s.redoStack, e)

	if len(s.redoStack) > s.cfg.MaxRedoEntries {
		excess := len(s.redoStack) - s.cfg.MaxRedoEntries
		s.evictRedoLocked(excess, metrics.ReasonCount)
	}
	s.observeLocked()
	ev := s.historyEventLocked()
	s.mu.Unlock()

	s.emit(ev)
	return e.rec.Clone(), true
}

// Redo moves the most recently undone record back to the undo stack and
// returns a copy of it. It returns false when there is nothing to redo.
func (s *Store) Redo() (*record.Record, bool) {
	s.mu.Lock()
	if len(s.redoStack) == 0 {
		s.mu.Unlock()
		s.logger.Debug("redo on empty history")
		return nil, false
	}

	e := s.redoStack[len(s.redoStack)-1]
	s.redoStack = s.redoStack[:len(s.redoStack)-1]
	s.undoStack = append(s.undoStack, e)
	s.enforceCountLimitLocked()
	s.observeLocked()
	ev := s.historyEventLocked()
	s.mu.Unlock()

	s.emit(ev)
	return e.rec.Clone(), true
}

// RemoveByID removes the record with the given ID from whichever stack
// holds it. It returns false if no such record exists.
func (s *Store) RemoveByID(id record.ID) bool {
	s.mu.Lock()
	removed := s.removeLocked(id)
	if !removed {
		s.mu.Unlock()
		s.logger.Debug("remove: record not found", zap.String("id", string(id)))
		return false
	}
	s.observeLocked()
	ev := s.historyEventLocked()
	s.mu.Unlock()

	s.emit(ev)
	return true
}

// Update replaces the record with the same ID in place, adjusting memory
// accounting by the size difference. It returns false if the ID is absent.
func (s *Store) Update(updated *record.Record) bool {
	if updated == nil {
		return false
	}

	s.mu.Lock()
	e := s.findLocked(updated.ID)
	if e == nil {
		s.mu.Unlock()
		s.logger.Debug("update: record not found", zap.String("id", string(updated.ID)))
		return false
	}

	changes := record.Diff(e.rec, updated)
	newSize := s.estimator.Estimate(updated)
	s.memoryUsage += newSize - e.size
	e.rec = updated
	e.size = newSize
	s.tickLocked()
	ev := s.historyEventLocked()
	s.mu.Unlock()

	s.emit(notify.ActionUpdatedEvent(string(updated.ID), changes))
	s.emit(ev)
	return true
}

// Get returns a copy of the record with the given ID from either stack.
func (s *Store) Get(id record.ID) (*record.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.findLocked(id)
	if e == nil {
		return nil, false
	}
	return e.rec.Clone(), true
}

// Contains reports whether the undo stack holds a record with the given ID.
func (s *Store) Contains(id record.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.undoStack {
		if e.rec.ID == id {
			return true
		}
	}
	return false
}

// Records returns a snapshot copy of the applied records in order.
func (s *Store) Records() record.List {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneEntries(s.undoStack)
}

// RedoRecords returns a snapshot copy of the undone records in order.
func (s *Store) RedoRecords() record.List {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneEntries(s.redoStack)
}

// CanUndo returns true if undo is available.
func (s *Store) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undoStack) > 0
}

// CanRedo returns true if redo is available.
func (s *Store) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redoStack) > 0
}

// UndoCount returns the number of records on the undo stack.
func (s *Store) UndoCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undoStack)
}

// RedoCount returns the number of records on the redo stack.
func (s *Store) RedoCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redoStack)
}

// MemoryUsage returns the incrementally tracked memory estimate.
func (s *Store) MemoryUsage() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memoryUsage
}

// Config returns the active configuration.
func (s *Store) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SetConfig replaces the limits and enforces them immediately.
func (s *Store) SetConfig(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.sanitize(s.logger)
	if len(s.redoStack) > s.cfg.MaxRedoEntries {
		s.evictRedoLocked(len(s.redoStack)-s.cfg.MaxRedoEntries, metrics.ReasonCount)
	}
	s.enforceCountLimitLocked()
	s.enforceMemoryLimitLocked()
	ev := s.historyEventLocked()
	s.mu.Unlock()

	s.emit(ev)
}

// SetEstimator replaces the size estimator, re-sizes every record and
// enforces the memory budget against the new sizes.
func (s *Store) SetEstimator(est memory.Estimator) {
	s.mu.Lock()
	s.estimator = est
	s.enforceMemoryLimitLocked()
	s.observeLocked()
	ev := s.historyEventLocked()
	s.mu.Unlock()

	s.emit(ev)
}

// Clear removes all undo/redo history.
func (s *Store) Clear() {
	s.mu.Lock()
	s.undoStack = nil
	s.redoStack = nil
	s.memoryUsage = 0
	s.observeLocked()
	ev := s.historyEventLocked()
	s.mu.Unlock()

	s.emit(ev)
}

// EnforceCountLimit evicts the oldest applied records while the undo stack
// exceeds its maximum length.
func (s *Store) EnforceCountLimit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enforceCountLimitLocked()
}

// EnforceMemoryLimit recomputes memory usage and evicts records until the
// stacks fit the budget.
func (s *Store) EnforceMemoryLimit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enforceMemoryLimitLocked()
}

// RecalculateMemory recomputes memory usage from scratch and returns it.
func (s *Store) RecalculateMemory() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recalculateLocked()
}

// newEntryLocked wraps a record and adds its size to the running total.
func (s *Store) newEntryLocked(r *record.Record) *entry {
	size := s.estimator.Estimate(r)
	s.memoryUsage += size
	return &entry{rec: r, size: size, timestamp: s.now()}
}

// clearRedoLocked drops the redo stack and reclaims its memory.
func (s *Store) clearRedoLocked() {
	for _, e := range s.redoStack {
		s.memoryUsage -= e.size
	}
	s.redoStack = nil
}

// tickLocked advances the operation counter and runs periodic maintenance.
func (s *Store) tickLocked() {
	s.opCount++
	if s.cfg.RecalculateIntervalOps > 0 && s.opCount%uint64(s.cfg.RecalculateIntervalOps) == 0 {
		s.recalculateLocked()
	}
	if s.cfg.MemoryCheckIntervalOps > 0 && s.opCount%uint64(s.cfg.MemoryCheckIntervalOps) == 0 {
		s.enforceMemoryLimitLocked()
	}
	s.observeLocked()
}

func (s *Store) enforceCountLimitLocked() {
	if len(s.undoStack) <= s.cfg.MaxEntries {
		return
	}
	excess := len(s.undoStack) - s.cfg.MaxEntries
	s.evictUndoLocked(excess, metrics.ReasonCount)
}

func (s *Store) enforceMemoryLimitLocked() {
	total := s.recalculateLocked()
	budget := s.cfg.MaxMemoryBytes
	if total <= budget {
		return
	}

	redoTarget := budget * 9 / 10
	undoTarget := budget * 8 / 10

	evictedRedo := 0
	for s.memoryUsage > redoTarget && evictedRedo < len(s.redoStack) {
		s.memoryUsage -= s.redoStack[evictedRedo].size
		evictedRedo++
	}
	s.dropRedoHead(evictedRedo)
	s.metrics.HistoryEvicted(metrics.StackRedo, metrics.ReasonMemory, evictedRedo)

	evictedUndo := 0
	if s.memoryUsage > redoTarget {
		for s.memoryUsage > undoTarget && len(s.undoStack)-evictedUndo > s.cfg.MinRetained {
			s.memoryUsage -= s.undoStack[evictedUndo].size
			evictedUndo++
		}
		s.dropUndoHead(evictedUndo)
		s.metrics.HistoryEvicted(metrics.StackUndo, metrics.ReasonMemory, evictedUndo)
	}

	s.logger.Debug("memory limit enforced",
		zap.Int64("before", total),
		zap.Int64("after", s.memoryUsage),
		zap.Int64("budget", budget),
		zap.Int("evictedRedo", evictedRedo),
		zap.Int("evictedUndo", evictedUndo),
	)
}

func (s *Store) recalculateLocked() int64 {
	var total int64
	for _, stack := range [][]*entry{s.undoStack, s.redoStack} {
		for _, e := range stack {
			e.size = s.estimator.Estimate(e.rec)
			total += e.size
		}
	}
	if total != s.memoryUsage {
		s.logger.Debug("memory estimate drift corrected",
			zap.Int64("tracked", s.memoryUsage),
			zap.Int64("actual", total),
		)
	}
	s.memoryUsage = total
	s.metrics.HistoryRecalculated()
	return total
}

// evictUndoLocked drops the n oldest applied records.
func (s *Store) evictUndoLocked(n int, reason string) {
	for _, e := range s.undoStack[:n] {
		s.memoryUsage -= e.size
	}
	s.dropUndoHead(n)
	s.metrics.HistoryEvicted(metrics.StackUndo, reason, n)
	s.logger.Debug("evicted undo entries", zap.Int("count", n), zap.String("reason", reason))
}

// evictRedoLocked drops the n oldest undone records.
func (s *Store) evictRedoLocked(n int, reason string) {
	for _, e := range s.redoStack[:n] {
		s.memoryUsage -= e.size
	}
	s.dropRedoHead(n)
	s.metrics.HistoryEvicted(metrics.StackRedo, reason, n)
	s.logger.Debug("evicted redo entries", zap.Int("count", n), zap.String("reason", reason))
}

// dropUndoHead removes n entries from the front without touching accounting.
// The remaining entries are copied so the evicted ones can be collected.
func (s *Store) dropUndoHead(n int) {
	if n <= 0 {
		return
	}
	s.undoStack = append([]*entry(nil), s.undoStack[n:]...)
}

func (s *Store) dropRedoHead(n int) {
	if n <= 0 {
		return
	}
	s.redoStack = append([]*entry(nil), s.redoStack[n:]...)
}

func (s *Store) removeLocked(id record.ID) bool {
	for i, e := range s.undoStack {
		if e.rec.ID == id {
			s.undoStack = append(s.undoStack[:i], s.undoStack[i+1:]...)
			s.memoryUsage -= e.size
			return true
		}
	}
	for i, e := range s.redoStack {
		if e.rec.ID == id {
			s.redoStack = append(s.redoStack[:i], s.redoStack[i+1:]...)
			s.memoryUsage -= e.size
			return true
		}
	}
	return false
}

func (s *Store) findLocked(id record.ID) *entry {
	for _, e := range s.undoStack {
		if e.rec.ID == id {
			return e
		}
	}
	for _, e := range s.redoStack {
		if e.rec.ID == id {
			return e
		}
	}
	return nil
}

func (s *Store) observeLocked() {
	s.metrics.SetHistory(len(s.undoStack), len(s.redoStack), s.memoryUsage)
}

func (s *Store) historyEventLocked() notify.Event {
	return notify.HistoryChangedEvent(len(s.undoStack) > 0, len(s.redoStack) > 0, len(s.undoStack))
}

func (s *Store) emit(ev notify.Event) {
	if s.emitter != nil {
		s.emitter.Emit(ev)
	}
}

func cloneEntries(stack []*entry) record.List {
	out := make(record.List, len(stack))
	for i, e := range stack {
		out[i] = e.rec.Clone()
	}
	return out
}

// NotifyChanged emits a history:changed event describing the current state.
// Composite edits call it once after their individual steps.
func (s *Store) NotifyChanged() {
	s.mu.Lock()
	ev := s.historyEventLocked()
	s.mu.Unlock()

	s.emit(ev)
}
