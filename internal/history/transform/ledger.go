// Package transform records drag, resize and rotate gestures as single
// reversible units.
//
// A gesture may mutate its records many times while it is in progress; only
// the net before and after states are recorded, once, when it ends. Undo is
// linear: only the most recent transform can be undone.
package transform

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/inkwell/internal/history/record"
	"github.com/dshills/inkwell/internal/metrics"
)

// DefaultMaxOperations is the default number of retained transforms.
const DefaultMaxOperations = 50

// ID uniquely identifies a recorded transform.
type ID string

// Store is the record store a Ledger writes through.
type Store interface {
	Update(updated *record.Record) bool
	NotifyChanged()
}

// Operation is one recorded gesture.
type Operation struct {
	ID        ID
	Before    record.List
	After     record.List
	CreatedAt time.Time
}

// Ledger keeps a bounded log of transforms.
type Ledger struct {
	mu sync.Mutex

	store    Store
	registry *record.Registry
	maxOps   int
	log      []*Operation

	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the ledger logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithRegistry sets the kind registry consulted for CapTransform.
func WithRegistry(r *record.Registry) Option {
	return func(l *Ledger) {
		if r != nil {
			l.registry = r
		}
	}
}

// WithClock sets the time source for transform timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger creates a ledger writing through store. A non-positive
// maxOps falls back to DefaultMaxOperations.
func NewLedger(store Store, maxOps int, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		registry: record.NewRegistry(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if maxOps <= 0 {
		l.logger.Warn("invalid transform config value clamped",
			zap.String("field", "maxOperations"),
			zap.Int("value", maxOps),
			zap.Int("default", DefaultMaxOperations),
		)
		maxOps = DefaultMaxOperations
	}
	l.maxOps = maxOps
	return l
}

// Record logs a gesture and applies its after state to the store.
// Records whose kind cannot be transformed are skipped. It returns false if
// nothing was left to record.
func (l *Ledger) Record(before, after record.List) (ID, bool) {
	before = l.transformable(before)
	after = l.transformable(after)
	if len(before) == 0 && len(after) == 0 {
		l.logger.Debug("transform: nothing to record")
		return "", false
	}

	op := &Operation{
		ID:        ID(uuid.NewString()),
		Before:    before.Clone(),
		After:     after.Clone(),
		CreatedAt: l.now(),
	}

	l.mu.Lock()
	l.log = append(l.log, op)
	if excess := len(l.log) - l.maxOps; excess > 0 {
		l.log = append(l.log[:0], l.log[excess:]...)
	}
	l.mu.Unlock()

	l.apply(op.After)
	l.metrics.Transform(metrics.OpExecute)
	l.store.NotifyChanged()
	return op.ID, true
}

// UndoTransform writes the before state of the most recent transform back to
// the store. It returns false if there is nothing to undo.
func (l *Ledger) UndoTransform() bool {
	l.mu.Lock()
	if len(l.log) == 0 {
		l.mu.Unlock()
		l.logger.Debug("transform undo on empty log")
		return false
	}
	op := l.log[len(l.log)-1]
	l.log = l.log[:len(l.log)-1]
	l.mu.Unlock()

	l.apply(op.Before)
	l.metrics.Transform(metrics.OpUndo)
	l.store.NotifyChanged()
	return true
}

// CanUndoTransform reports whether a transform can be undone.
func (l *Ledger) CanUndoTransform() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.log) > 0
}

// Len returns the number of logged transforms.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.log)
}

// Last returns the ID of the most recent transform.
func (l *Ledger) Last() (ID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.log) == 0 {
		return "", false
	}
	return l.log[len(l.log)-1].ID, true
}

// SetMaxOperations changes the log bound, dropping the oldest transforms.
func (l *Ledger) SetMaxOperations(n int) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxOps = n
	if excess := len(l.log) - n; excess > 0 {
		l.log = append(l.log[:0], l.log[excess:]...)
	}
}

// Clear drops every logged transform.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = nil
}

// apply writes copies of records to the store; the log keeps its own.
func (l *Ledger) apply(records record.List) {
	for _, r := range records {
		if !l.store.Update(r.Clone()) {
			l.logger.Warn("transform target not found", zap.String("id", string(r.ID)))
		}
	}
}

func (l *Ledger) transformable(records record.List) record.List {
	out := make(record.List, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		if !l.registry.Has(r.Kind, record.CapTransform) {
			l.logger.Warn("transform: kind not transformable, skipped",
				zap.String("id", string(r.ID)),
				zap.String("kind", string(r.Kind)),
			)
			continue
		}
		out = append(out, r)
	}
	return out
}
