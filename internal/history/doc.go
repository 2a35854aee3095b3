// Package history provides the bounded-memory undo/redo log for edit records.
//
// # Records
//
// A record.Record is one atomic edit: a freeform path, a shape, a text box,
// an erase. Records are owned by the Store once added.
//
// # Store
//
// The Store keeps two stacks. The undo stack is the set of applied records,
// most recent last. The redo stack holds undone records:
//
//	store := history.NewStore(history.DefaultConfig())
//
//	store.Add(stroke)
//	store.Undo() // stroke moves to the redo stack
//	store.Redo() // and back
//
// History is linear. Add always clears the redo stack.
//
// # Memory Budget
//
// Every record is sized with a memory.Estimator. The count limit is enforced
// on every Add; the memory limit every MemoryCheckIntervalOps operations.
// Memory enforcement evicts the oldest undone records first, down to 90% of
// the budget, and only then the oldest applied records, down to 80%, never
// leaving fewer than MinRetained applied records.
//
// # Composite Edits
//
// Sub-packages batch and transform group several primitive edits into one
// reversible unit on top of the Store.
package history
