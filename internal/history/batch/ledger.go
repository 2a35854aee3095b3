package batch

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/inkwell/internal/history/record"
	"github.com/dshills/inkwell/internal/metrics"
)

// DefaultMaxOperations is the default number of retained batches.
const DefaultMaxOperations = 50

// Store is the record store a Ledger drives.
type Store interface {
	Get(id record.ID) (*record.Record, bool)
	Contains(id record.ID) bool
	RemoveByID(id record.ID) bool
	Add(r *record.Record)
	Restore(records ...*record.Record)
	NotifyChanged()
}

// Config configures a Ledger.
type Config struct {
	// MaxOperations bounds both the batch log and the undone table.
	MaxOperations int

	// Incremental selects StorageIncremental for new batches.
	Incremental bool
}

// DefaultConfig returns the default ledger configuration.
func DefaultConfig() Config {
	return Config{
		MaxOperations: DefaultMaxOperations,
		Incremental:   true,
	}
}

// Ledger groups removals and additions into reversible batch operations.
//
// The log holds batches that can be undone, oldest first. Undoing a batch
// moves it out of the log into the undone table, so it can be undone at most
// once in a row; redoing moves it back into the log.
type Ledger struct {
	mu sync.Mutex

	store  Store
	cfg    Config
	log    []*Operation
	undone []*Operation

	// Serialized snapshots of incremental batches, keyed by batch ID
	snapshots map[ID][]byte

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

// WithClock sets the time source for batch timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger creates a ledger driving store.
func NewLedger(store Store, cfg Config, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		snapshots: make(map[ID][]byte),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if cfg.MaxOperations <= 0 {
		l.logger.Warn("invalid batch config value clamped",
			zap.String("field", "maxBatchOperations"),
			zap.Int("value", cfg.MaxOperations),
			zap.Int("default", DefaultMaxOperations),
		)
		cfg.MaxOperations = DefaultMaxOperations
	}
	l.cfg = cfg
	return l
}

// Execute removes the records named by removedIDs, adds the given records and
// logs the pair as one batch. Only applied records can be removed: IDs that
// are unknown, repeated or only on the redo stack are skipped. Added records
// whose ID is already applied, or repeated, are skipped as well.
// The added records are owned by the store afterwards.
func (l *Ledger) Execute(kind Kind, removedIDs []record.ID, added record.List, description string) ID {
	removed := make(record.List, 0, len(removedIDs))
	removing := make(map[record.ID]struct{}, len(removedIDs))
	for _, id := range removedIDs {
		if _, dup := removing[id]; dup {
			continue
		}
		r, ok := l.store.Get(id)
		if !ok || !l.store.Contains(id) {
			l.logger.Debug("batch: removed record not applied",
				zap.String("kind", string(kind)),
				zap.String("id", string(id)),
			)
			continue
		}
		removing[id] = struct{}{}
		removed = append(removed, r)
	}

	accepted := make(record.List, 0, len(added))
	adding := make(map[record.ID]struct{}, len(added))
	for _, r := range added {
		if r == nil {
			continue
		}
		_, dup := adding[r.ID]
		_, replaced := removing[r.ID]
		if dup || (!replaced && l.store.Contains(r.ID)) {
			l.logger.Debug("batch: added record already applied",
				zap.String("kind", string(kind)),
				zap.String("id", string(r.ID)),
			)
			continue
		}
		adding[r.ID] = struct{}{}
		accepted = append(accepted, r)
	}
	added = accepted

	addedCopies := added.Clone()
	for _, r := range removed {
		l.store.RemoveByID(r.ID)
	}
	for _, r := range added {
		l.store.Add(r)
	}

	now := l.now()
	op := &Operation{
		ID:          NewID(),
		Kind:        kind,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
		RemovedIDs:  removed.IDs(),
		AddedIDs:    addedCopies.IDs(),
	}

	l.mu.Lock()
	l.persistLocked(op, removed, addedCopies)
	l.log = append(l.log, op)
	l.log = l.trimLocked(l.log)
	l.mu.Unlock()

	l.metrics.Batch(metrics.OpExecute)
	l.logger.Debug("batch executed",
		zap.String("batch", string(op.ID)),
		zap.String("kind", string(kind)),
		zap.Int("removed", len(op.RemovedIDs)),
		zap.Int("added", len(op.AddedIDs)),
	)
	l.store.NotifyChanged()
	return op.ID
}

// Undo reverts a logged batch: its added records are removed and its removed
// records are restored without clearing the redo stack. The batch leaves the
// log. On failure the store is left untouched.
func (l *Ledger) Undo(id ID) UndoResult {
	l.mu.Lock()
	idx := indexOf(l.log, id)
	if idx < 0 {
		l.mu.Unlock()
		l.logger.Debug("batch undo: not found", zap.String("batch", string(id)))
		return UndoResult{}
	}
	op := l.log[idx]
	removed, added, err := l.loadLocked(op)
	if err != nil {
		l.mu.Unlock()
		l.integrityFailure("undo", op, err)
		return UndoResult{}
	}
	l.log = append(l.log[:idx], l.log[idx+1:]...)
	l.mu.Unlock()

	result := UndoResult{Success: true}
	for _, r := range added {
		if l.store.RemoveByID(r.ID) {
			result.RemovedIDs = append(result.RemovedIDs, r.ID)
		}
	}
	result.Restored = removed.Clone()
	l.store.Restore(removed...)

	l.mu.Lock()
	op.UpdatedAt = l.now()
	l.undone = append(l.undone, op)
	l.undone = l.trimLocked(l.undone)
	l.mu.Unlock()

	l.metrics.Batch(metrics.OpUndo)
	l.store.NotifyChanged()
	return result
}

// Redo reapplies an undone batch and returns it to the log, where it can
// be undone again. It returns false if the batch was not undone or its
// snapshot is missing.
func (l *Ledger) Redo(id ID) bool {
	l.mu.Lock()
	idx := indexOf(l.undone, id)
	if idx < 0 {
		l.mu.Unlock()
		l.logger.Debug("batch redo: not found", zap.String("batch", string(id)))
		return false
	}
	op := l.undone[idx]
	removed, added, err := l.loadLocked(op)
	if err != nil {
		l.mu.Unlock()
		l.integrityFailure("redo", op, err)
		return false
	}
	l.undone = append(l.undone[:idx], l.undone[idx+1:]...)
	l.mu.Unlock()

	for _, r := range removed {
		l.store.RemoveByID(r.ID)
	}
	for _, r := range added {
		if l.store.Contains(r.ID) {
			continue
		}
		l.store.Add(r)
	}

	l.mu.Lock()
	op.UpdatedAt = l.now()
	l.log = append(l.log, op)
	l.log = l.trimLocked(l.log)
	l.mu.Unlock()

	l.metrics.Batch(metrics.OpRedo)
	l.store.NotifyChanged()
	return true
}

// CanUndo reports whether the batch is in the log.
func (l *Ledger) CanUndo(id ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return indexOf(l.log, id) >= 0
}

// CanRedo reports whether the batch has been undone and not yet redone.
func (l *Ledger) CanRedo(id ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return indexOf(l.undone, id) >= 0
}

// Get returns info about a batch in the log or the undone table.
func (l *Ledger) Get(id ID) (Info, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if idx := indexOf(l.log, id); idx >= 0 {
		return l.log[idx].info(false), true
	}
	if idx := indexOf(l.undone, id); idx >= 0 {
		return l.undone[idx].info(true), true
	}
	return Info{}, false
}

// Len returns the number of batches in the log.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.log)
}

// SnapshotBytes returns the total size of the incremental side table.
func (l *Ledger) SnapshotBytes() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, data := range l.snapshots {
		n += int64(len(data))
	}
	return n
}

// Snapshot returns the serialized snapshot of an incremental batch.
func (l *Ledger) Snapshot(id ID) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, ok := l.snapshots[id]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

// Config returns the ledger configuration.
func (l *Ledger) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// SetConfig changes the ledger limits. Batches beyond the new bound are
// dropped oldest first. The storage mode applies to new batches only.
func (l *Ledger) SetConfig(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cfg.MaxOperations <= 0 {
		cfg.MaxOperations = l.cfg.MaxOperations
	}
	l.cfg = cfg
	l.log = l.trimLocked(l.log)
	l.undone = l.trimLocked(l.undone)
}

// Clear drops every batch and snapshot.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = nil
	l.undone = nil
	l.snapshots = make(map[ID][]byte)
}

func (l *Ledger) persistLocked(op *Operation, removed, added record.List) {
	if l.cfg.Incremental {
		data, err := EncodeSnapshot(op.ID, op.Kind, removed, added)
		if err == nil {
			op.Mode = StorageIncremental
			l.snapshots[op.ID] = data
			return
		}
		l.logger.Warn("batch snapshot encoding failed, keeping full copies",
			zap.String("batch", string(op.ID)),
			zap.Error(err),
		)
	}
	op.Mode = StorageFull
	op.removed = removed
	op.added = added
}

// loadLocked returns fresh copies of the batch's removed and added records.
func (l *Ledger) loadLocked(op *Operation) (record.List, record.List, error) {
	if op.Mode == StorageFull {
		return op.removed.Clone(), op.added.Clone(), nil
	}
	data, ok := l.snapshots[op.ID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: batch %s", ErrSnapshotMissing, op.ID)
	}
	_, removed, added, err := DecodeSnapshot(data)
	if err != nil {
		return nil, nil, err
	}
	return removed, added, nil
}

// trimLocked drops the oldest operations beyond the configured bound.
func (l *Ledger) trimLocked(ops []*Operation) []*Operation {
	excess := len(ops) - l.cfg.MaxOperations
	if excess <= 0 {
		return ops
	}
	for _, old := range ops[:excess] {
		l.releaseLocked(old)
	}
	return append(ops[:0], ops[excess:]...)
}

func (l *Ledger) releaseLocked(op *Operation) {
	delete(l.snapshots, op.ID)
	op.removed = nil
	op.added = nil
}

func (l *Ledger) integrityFailure(action string, op *Operation, err error) {
	l.metrics.BatchIntegrityFailure()
	l.logger.Error("batch integrity failure",
		zap.String("action", action),
		zap.String("batch", string(op.ID)),
		zap.String("kind", string(op.Kind)),
		zap.Error(err),
	)
}

func indexOf(ops []*Operation, id ID) int {
	for i, op := range ops {
		if op.ID == id {
			return i
		}
	}
	return -1
}
