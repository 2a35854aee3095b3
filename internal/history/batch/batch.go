// Package batch groups removals and additions of edit records into single
// reversible operations.
//
// A batch keeps its record copies either inline (StorageFull) or as a
// serialized Snapshot in a side table (StorageIncremental), so a split that
// multiplies the record count does not double the memory held for undo.
package batch

import (
	"time"

	"github.com/google/uuid"

	"github.com/dshills/inkwell/internal/history/record"
)

// ID uniquely identifies a batch operation.
type ID string

// NewID returns a fresh random batch ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// Kind describes what a batch does.
type Kind string

// Batch kinds.
const (
	// KindStructuralSplit replaces one record by several, e.g. an eraser
	// cutting a stroke in pieces.
	KindStructuralSplit Kind = "structural-split"
	KindMultiDelete     Kind = "multi-delete"
	KindMultiTransform  Kind = "multi-transform"
	KindCustom          Kind = "custom"
)

// StorageMode selects how a batch keeps its record copies.
type StorageMode int

const (
	// StorageFull keeps inline deep copies of the affected records.
	StorageFull StorageMode = iota

	// StorageIncremental keeps only a serialized snapshot in the ledger's
	// side table, keyed by batch ID.
	StorageIncremental
)

// String returns the storage mode name.
func (m StorageMode) String() string {
	switch m {
	case StorageFull:
		return "full"
	case StorageIncremental:
		return "incremental"
	default:
		return "unknown"
	}
}

// Operation is a group of removals and additions treated as one
// undo/redo unit.
type Operation struct {
	ID          ID
	Kind        Kind
	Description string
	Mode        StorageMode
	CreatedAt   time.Time
	UpdatedAt   time.Time

	RemovedIDs []record.ID
	AddedIDs   []record.ID

	// Inline copies, populated only in StorageFull mode.
	removed record.List
	added   record.List
}

// Info provides read-only info about a batch.
type Info struct {
	ID          ID
	Kind        Kind
	Description string
	Mode        StorageMode
	Removed     int
	Added       int
	RemovedIDs  []record.ID
	AddedIDs    []record.ID
	CreatedAt   time.Time
	Undone      bool
}

func (op *Operation) info(undone bool) Info {
	return Info{
		ID:          op.ID,
		Kind:        op.Kind,
		Description: op.Description,
		Mode:        op.Mode,
		Removed:     len(op.RemovedIDs),
		Added:       len(op.AddedIDs),
		RemovedIDs:  append([]record.ID(nil), op.RemovedIDs...),
		AddedIDs:    append([]record.ID(nil), op.AddedIDs...),
		CreatedAt:   op.CreatedAt,
		Undone:      undone,
	}
}

// UndoResult reports the outcome of undoing a batch.
type UndoResult struct {
	Success bool

	// RemovedIDs are the IDs of the batch's added records that were removed.
	RemovedIDs []record.ID

	// Restored are copies of the records that were reinstated.
	Restored record.List
}
