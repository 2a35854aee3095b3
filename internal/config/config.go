package config

import (
	"time"

	"github.com/dshills/inkwell/internal/cache"
	"github.com/dshills/inkwell/internal/history"
	"github.com/dshills/inkwell/internal/history/batch"
	"github.com/dshills/inkwell/internal/history/memory"
)

// Config holds every recognized option.
type Config struct {
	MaxHistoryEntries            int   `toml:"maxHistoryEntries" yaml:"maxHistoryEntries" validate:"min=1"`
	MaxRedoEntries               int   `toml:"maxRedoEntries" yaml:"maxRedoEntries" validate:"min=1"`
	MinHistoryEntries            int   `toml:"minHistoryEntries" yaml:"minHistoryEntries" validate:"min=0,ltefield=MaxHistoryEntries"`
	MaxMemoryBytes               int64 `toml:"maxMemoryBytes" yaml:"maxMemoryBytes" validate:"min=1"`
	MemoryCheckIntervalOps       int   `toml:"memoryCheckIntervalOps" yaml:"memoryCheckIntervalOps" validate:"min=1"`
	MemoryRecalculateIntervalOps int   `toml:"memoryRecalculateIntervalOps" yaml:"memoryRecalculateIntervalOps" validate:"min=1"`
	MaxBatchOperations           int   `toml:"maxBatchOperations" yaml:"maxBatchOperations" validate:"min=1"`
	UseIncrementalBatchStorage   bool  `toml:"useIncrementalBatchStorage" yaml:"useIncrementalBatchStorage"`

	Memory  MemoryConfig  `toml:"memory" yaml:"memory"`
	Cache   CacheConfig   `toml:"cache" yaml:"cache"`
	Logging LoggingConfig `toml:"logging" yaml:"logging"`
}

// MemoryConfig holds the record size estimation constants.
type MemoryConfig struct {
	RecordOverheadBytes int64 `toml:"recordOverheadBytes" yaml:"recordOverheadBytes" validate:"min=0"`
	BytesPerPoint       int64 `toml:"bytesPerPoint" yaml:"bytesPerPoint" validate:"min=0"`
	BytesPerChar        int64 `toml:"bytesPerChar" yaml:"bytesPerChar" validate:"min=0"`
}

// CacheConfig holds the retention cache options. Durations are in
// milliseconds.
type CacheConfig struct {
	MaxEntries          int     `toml:"maxEntries" yaml:"maxEntries" validate:"min=1"`
	MaxMemoryBytes      int64   `toml:"maxMemoryBytes" yaml:"maxMemoryBytes" validate:"min=1"`
	TTLMs               int64   `toml:"ttlMs" yaml:"ttlMs" validate:"min=0"`
	CleanupIntervalMs   int64   `toml:"cleanupIntervalMs" yaml:"cleanupIntervalMs" validate:"min=1"`
	ComplexityWeight    float64 `toml:"complexityWeight" yaml:"complexityWeight" validate:"min=0"`
	AccessWeight        float64 `toml:"accessWeight" yaml:"accessWeight" validate:"min=0"`
	MemoryPenaltyWeight float64 `toml:"memoryPenaltyWeight" yaml:"memoryPenaltyWeight" validate:"min=0"`
	ComplexityThreshold float64 `toml:"complexityThreshold" yaml:"complexityThreshold" validate:"min=0"`
	RecencyHorizonMs    int64   `toml:"recencyHorizonMs" yaml:"recencyHorizonMs" validate:"min=1"`
}

// LoggingConfig holds the logger options.
type LoggingConfig struct {
	Level       string `toml:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `toml:"development" yaml:"development"`
}

// Default returns the default configuration.
func Default() Config {
	cc := cache.DefaultConfig()
	return Config{
		MaxHistoryEntries:            history.DefaultMaxEntries,
		MaxRedoEntries:               history.DefaultMaxRedoEntries,
		MinHistoryEntries:            history.DefaultMinRetained,
		MaxMemoryBytes:               history.DefaultMaxMemoryBytes,
		MemoryCheckIntervalOps:       history.DefaultMemoryCheckIntervalOps,
		MemoryRecalculateIntervalOps: history.DefaultRecalculateIntervalOps,
		MaxBatchOperations:           batch.DefaultMaxOperations,
		UseIncrementalBatchStorage:   true,
		Memory: MemoryConfig{
			RecordOverheadBytes: memory.DefaultRecordOverhead,
			BytesPerPoint:       memory.DefaultBytesPerPoint,
			BytesPerChar:        memory.DefaultBytesPerChar,
		},
		Cache: CacheConfig{
			MaxEntries:          cc.MaxEntries,
			MaxMemoryBytes:      cc.MaxMemoryBytes,
			TTLMs:               cc.TTL.Milliseconds(),
			CleanupIntervalMs:   cc.CleanupInterval.Milliseconds(),
			ComplexityWeight:    cc.ComplexityWeight,
			AccessWeight:        cc.AccessWeight,
			MemoryPenaltyWeight: cc.MemoryPenaltyWeight,
			ComplexityThreshold: cc.ComplexityThreshold,
			RecencyHorizonMs:    cc.RecencyHorizon.Milliseconds(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// History returns the store limits.
func (c Config) History() history.Config {
	return history.Config{
		MaxEntries:             c.MaxHistoryEntries,
		MaxRedoEntries:         c.MaxRedoEntries,
		MinRetained:            c.MinHistoryEntries,
		MaxMemoryBytes:         c.MaxMemoryBytes,
		MemoryCheckIntervalOps: c.MemoryCheckIntervalOps,
		RecalculateIntervalOps: c.MemoryRecalculateIntervalOps,
	}
}

// Batch returns the batch ledger configuration.
func (c Config) Batch() batch.Config {
	return batch.Config{
		MaxOperations: c.MaxBatchOperations,
		Incremental:   c.UseIncrementalBatchStorage,
	}
}

// Estimator returns the memory estimator constants.
func (c Config) Estimator() memory.Config {
	return memory.Config{
		RecordOverhead: c.Memory.RecordOverheadBytes,
		BytesPerPoint:  c.Memory.BytesPerPoint,
		BytesPerChar:   c.Memory.BytesPerChar,
	}
}

// CacheSettings returns the retention cache configuration.
func (c Config) CacheSettings() cache.Config {
	return cache.Config{
		MaxEntries:          c.Cache.MaxEntries,
		MaxMemoryBytes:      c.Cache.MaxMemoryBytes,
		TTL:                 time.Duration(c.Cache.TTLMs) * time.Millisecond,
		CleanupInterval:     time.Duration(c.Cache.CleanupIntervalMs) * time.Millisecond,
		ComplexityWeight:    c.Cache.ComplexityWeight,
		AccessWeight:        c.Cache.AccessWeight,
		MemoryPenaltyWeight: c.Cache.MemoryPenaltyWeight,
		ComplexityThreshold: c.Cache.ComplexityThreshold,
		RecencyHorizon:      time.Duration(c.Cache.RecencyHorizonMs) * time.Millisecond,
	}
}
