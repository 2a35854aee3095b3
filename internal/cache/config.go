package cache

import (
	"time"

	"go.uber.org/zap"
)

// Default configuration values.
const (
	DefaultMaxEntries          = 200
	DefaultMaxMemoryBytes      = 32 << 20
	DefaultTTL                 = 5 * time.Minute
	DefaultCleanupInterval     = 30 * time.Second
	DefaultComplexityWeight    = 1.0
	DefaultAccessWeight        = 0.5
	DefaultMemoryPenaltyWeight = 0.1
	DefaultComplexityThreshold = 50
	DefaultRecencyHorizon      = 10 * time.Minute
)

// Config configures a Cache.
type Config struct {
	// MaxEntries caps the number of entries.
	MaxEntries int

	// MaxMemoryBytes caps the summed entry sizes.
	MaxMemoryBytes int64

	// TTL is the default entry lifetime, measured from insertion.
	// Zero disables expiry.
	TTL time.Duration

	// CleanupInterval is how often the host should call Tick.
	CleanupInterval time.Duration

	// Score weights.
	ComplexityWeight    float64
	AccessWeight        float64
	MemoryPenaltyWeight float64

	// ComplexityThreshold is the minimum complexity ShouldCache accepts.
	ComplexityThreshold float64

	// RecencyHorizon replaces TTL as the recency window when TTL is zero.
	RecencyHorizon time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxEntries:          DefaultMaxEntries,
		MaxMemoryBytes:      DefaultMaxMemoryBytes,
		TTL:                 DefaultTTL,
		CleanupInterval:     DefaultCleanupInterval,
		ComplexityWeight:    DefaultComplexityWeight,
		AccessWeight:        DefaultAccessWeight,
		MemoryPenaltyWeight: DefaultMemoryPenaltyWeight,
		ComplexityThreshold: DefaultComplexityThreshold,
		RecencyHorizon:      DefaultRecencyHorizon,
	}
}

// sanitize clamps invalid values to their defaults, logging a warning for each.
func (c Config) sanitize(logger *zap.Logger) Config {
	def := DefaultConfig()
	warn := func(field string, value, fallback any) {
		logger.Warn("invalid cache config value clamped",
			zap.String("field", field),
			zap.Any("value", value),
			zap.Any("default", fallback),
		)
	}

	if c.MaxEntries <= 0 {
		warn("maxEntries", c.MaxEntries, def.MaxEntries)
		c.MaxEntries = def.MaxEntries
	}
	if c.MaxMemoryBytes <= 0 {
		warn("maxMemoryBytes", c.MaxMemoryBytes, def.MaxMemoryBytes)
		c.MaxMemoryBytes = def.MaxMemoryBytes
	}
	if c.TTL < 0 {
		warn("ttl", c.TTL, def.TTL)
		c.TTL = def.TTL
	}
	if c.CleanupInterval <= 0 {
		warn("cleanupInterval", c.CleanupInterval, def.CleanupInterval)
		c.CleanupInterval = def.CleanupInterval
	}
	if c.ComplexityWeight < 0 {
		warn("complexityWeight", c.ComplexityWeight, def.ComplexityWeight)
		c.ComplexityWeight = def.ComplexityWeight
	}
	if c.AccessWeight < 0 {
		warn("accessWeight", c.AccessWeight, def.AccessWeight)
		c.AccessWeight = def.AccessWeight
	}
	if c.MemoryPenaltyWeight < 0 {
		warn("memoryPenaltyWeight", c.MemoryPenaltyWeight, def.MemoryPenaltyWeight)
		c.MemoryPenaltyWeight = def.MemoryPenaltyWeight
	}
	if c.ComplexityThreshold < 0 {
		warn("complexityThreshold", c.ComplexityThreshold, def.ComplexityThreshold)
		c.ComplexityThreshold = def.ComplexityThreshold
	}
	if c.RecencyHorizon <= 0 {
		warn("recencyHorizon", c.RecencyHorizon, def.RecencyHorizon)
		c.RecencyHorizon = def.RecencyHorizon
	}
	return c
}
