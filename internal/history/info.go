package history

import (
	"time"

	"github.com/dshills/inkwell/internal/history/record"
)

// EntryInfo provides read-only info about a history entry.
// Used for displaying undo/redo history to users.
type EntryInfo struct {
	ID        record.ID
	Kind      record.Kind
	Bytes     int64
	Timestamp time.Time
}

// Stats summarizes the store state.
type Stats struct {
	UndoCount   int
	RedoCount   int
	MemoryBytes int64
	BudgetBytes int64
	Operations  uint64
}

// PeekUndo returns info about the next undo entry without removing it.
func (s *Store) PeekUndo() (EntryInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.undoStack) == 0 {
		return EntryInfo{}, false
	}
	return infoOf(s.undoStack[len(s.undoStack)-1]), true
}

// PeekRedo returns info about the next redo entry without removing it.
func (s *Store) PeekRedo() (EntryInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.redoStack) == 0 {
		return EntryInfo{}, false
	}
	return infoOf(s.redoStack[len(s.redoStack)-1]), true
}

// UndoInfo returns info about every undo entry, oldest first.
func (s *Store) UndoInfo() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]EntryInfo, len(s.undoStack))
	for i, e := range s.undoStack {
		result[i] = infoOf(e)
	}
	return result
}

// Stats returns a summary of the store.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		UndoCount:   len(s.undoStack),
		RedoCount:   len(s.redoStack),
		MemoryBytes: s.memoryUsage,
		BudgetBytes: s.cfg.MaxMemoryBytes,
		Operations:  s.opCount,
	}
}

func infoOf(e *entry) EntryInfo {
	return EntryInfo{
		ID:        e.rec.ID,
		Kind:      e.rec.Kind,
		Bytes:     e.size,
		Timestamp: e.timestamp,
	}
}
