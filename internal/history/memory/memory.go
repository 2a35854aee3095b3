// Package memory estimates the in-memory footprint of edit records.
//
// The estimate is deliberately simple and deterministic: a fixed per-record
// overhead, a fixed cost per point, a fixed cost per character of every
// string field, and the size of any attached derived artifact. It is
// monotonic in the size of its input.
package memory

import (
	"unicode/utf8"

	"github.com/dshills/inkwell/internal/history/record"
)

// Default cost constants.
const (
	DefaultRecordOverhead = 256
	DefaultBytesPerPoint  = 24
	DefaultBytesPerChar   = 2
)

// Config holds the cost constants used by an Estimator.
type Config struct {
	RecordOverhead int64
	BytesPerPoint  int64
	BytesPerChar   int64
}

// DefaultConfig returns the default cost constants.
func DefaultConfig() Config {
	return Config{
		RecordOverhead: DefaultRecordOverhead,
		BytesPerPoint:  DefaultBytesPerPoint,
		BytesPerChar:   DefaultBytesPerChar,
	}
}

// Estimator computes record sizes. It has no state beyond its constants.
type Estimator struct {
	cfg Config
}

// NewEstimator creates an estimator. Negative constants fall back to their
// defaults; zero makes that component free.
func NewEstimator(cfg Config) Estimator {
	def := DefaultConfig()
	if cfg.RecordOverhead < 0 {
		cfg.RecordOverhead = def.RecordOverhead
	}
	if cfg.BytesPerPoint < 0 {
		cfg.BytesPerPoint = def.BytesPerPoint
	}
	if cfg.BytesPerChar < 0 {
		cfg.BytesPerChar = def.BytesPerChar
	}
	return Estimator{cfg: cfg}
}

// Config returns the estimator's cost constants.
func (e Estimator) Config() Config {
	return e.cfg
}

// Estimate returns the estimated size of r in bytes.
func (e Estimator) Estimate(r *record.Record) int64 {
	if r == nil {
		return 0
	}
	size := e.cfg.RecordOverhead
	size += int64(len(r.Points)) * e.cfg.BytesPerPoint

	chars := countChars(string(r.ID), string(r.Kind), string(r.GroupID), r.Text,
		r.Style.Color, r.Style.Fill, r.Style.FontFamily)
	size += int64(chars) * e.cfg.BytesPerChar

	if r.ArtifactBytes > 0 {
		size += r.ArtifactBytes
	}
	return size
}

// countChars sums the rune counts of the given strings.
func countChars(fields ...string) int {
	n := 0
	for _, f := range fields {
		n += utf8.RuneCountInString(f)
	}
	return n
}

// EstimateAll returns the summed estimate for a list of records.
func (e Estimator) EstimateAll(records []*record.Record) int64 {
	var total int64
	for _, r := range records {
		total += e.Estimate(r)
	}
	return total
}
