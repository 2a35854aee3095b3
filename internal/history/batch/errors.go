package batch

import "errors"

// Errors reported by the batch ledger.
var (
	// ErrSnapshotMissing indicates an incremental batch lost its side-table
	// snapshot. This is an integrity failure.
	ErrSnapshotMissing = errors.New("batch snapshot missing")

	// ErrSnapshotCorrupt indicates a snapshot could not be decoded.
	ErrSnapshotCorrupt = errors.New("batch snapshot corrupt")
)
