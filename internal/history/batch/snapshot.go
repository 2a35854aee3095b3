package batch

import (
	"encoding/json"
	"fmt"

	"github.com/dshills/inkwell/internal/history/record"
)

// SnapshotEntry is the structural text form of one record: its id, its kind
// and the serialized record payload.
type SnapshotEntry struct {
	ID      record.ID       `json:"id"`
	Kind    record.Kind     `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Snapshot is the serialized form of an incremental batch. Hosts may
// persist or transmit it; the ledger itself keeps it in memory only.
type Snapshot struct {
	BatchID ID              `json:"batchId"`
	Kind    Kind            `json:"kind"`
	Removed []SnapshotEntry `json:"removed"`
	Added   []SnapshotEntry `json:"added"`
}

// EncodeSnapshot serializes the removed and added records of a batch.
func EncodeSnapshot(id ID, kind Kind, removed, added record.List) ([]byte, error) {
	snap := Snapshot{BatchID: id, Kind: kind}

	var err error
	if snap.Removed, err = encodeEntries(removed); err != nil {
		return nil, fmt.Errorf("encode removed records of batch %s: %w", id, err)
	}
	if snap.Added, err = encodeEntries(added); err != nil {
		return nil, fmt.Errorf("encode added records of batch %s: %w", id, err)
	}

	return json.Marshal(snap)
}

// DecodeSnapshot parses a snapshot produced by EncodeSnapshot.
func DecodeSnapshot(data []byte) (Snapshot, record.List, record.List, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, nil, nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}

	removed, err := decodeEntries(snap.Removed)
	if err != nil {
		return Snapshot{}, nil, nil, err
	}
	added, err := decodeEntries(snap.Added)
	if err != nil {
		return Snapshot{}, nil, nil, err
	}
	return snap, removed, added, nil
}

func encodeEntries(records record.List) ([]SnapshotEntry, error) {
	entries := make([]SnapshotEntry, 0, len(records))
	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, SnapshotEntry{ID: r.ID, Kind: r.Kind, Payload: payload})
	}
	return entries, nil
}

func decodeEntries(entries []SnapshotEntry) (record.List, error) {
	records := make(record.List, 0, len(entries))
	for _, e := range entries {
		var r record.Record
		if err := json.Unmarshal(e.Payload, &r); err != nil {
			return nil, fmt.Errorf("%w: record %s: %v", ErrSnapshotCorrupt, e.ID, err)
		}
		if r.ID != e.ID {
			return nil, fmt.Errorf("%w: entry id %s does not match payload id %s", ErrSnapshotCorrupt, e.ID, r.ID)
		}
		records = append(records, &r)
	}
	return records, nil
}
