package history

import "go.uber.org/zap"

// Default limits.
const (
	DefaultMaxEntries             = 500
	DefaultMaxRedoEntries         = 100
	DefaultMinRetained            = 10
	DefaultMaxMemoryBytes         = 64 << 20
	DefaultMemoryCheckIntervalOps = 10
	DefaultRecalculateIntervalOps = 100
)

// Config holds the store limits.
type Config struct {
	// MaxEntries caps the undo stack length.
	MaxEntries int

	// MaxRedoEntries caps the redo stack length.
	MaxRedoEntries int

	// MinRetained is the undo stack length memory enforcement never goes below.
	MinRetained int

	// MaxMemoryBytes is the memory budget for both stacks combined.
	MaxMemoryBytes int64

	// MemoryCheckIntervalOps runs full memory enforcement every N operations.
	MemoryCheckIntervalOps int

	// RecalculateIntervalOps recomputes memory from scratch every N operations.
	RecalculateIntervalOps int
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		MaxEntries:             DefaultMaxEntries,
		MaxRedoEntries:         DefaultMaxRedoEntries,
		MinRetained:            DefaultMinRetained,
		MaxMemoryBytes:         DefaultMaxMemoryBytes,
		MemoryCheckIntervalOps: DefaultMemoryCheckIntervalOps,
		RecalculateIntervalOps: DefaultRecalculateIntervalOps,
	}
}

// sanitize clamps invalid values to their defaults, logging a warning for each.
func (c Config) sanitize(logger *zap.Logger) Config {
	def := DefaultConfig()
	warn := func(field string, got, used int64) {
		logger.Warn("invalid history config value clamped",
			zap.String("field", field),
			zap.Int64("value", got),
			zap.Int64("using", used),
		)
	}

	if c.MaxEntries <= 0 {
		warn("MaxEntries", int64(c.MaxEntries), int64(def.MaxEntries))
		c.MaxEntries = def.MaxEntries
	}
	if c.MaxRedoEntries <= 0 {
		warn("MaxRedoEntries", int64(c.MaxRedoEntries), int64(def.MaxRedoEntries))
		c.MaxRedoEntries = def.MaxRedoEntries
	}
	if c.MinRetained < 0 {
		warn("MinRetained", int64(c.MinRetained), int64(def.MinRetained))
		c.MinRetained = def.MinRetained
	}
	if c.MinRetained > c.MaxEntries {
		warn("MinRetained", int64(c.MinRetained), int64(c.MaxEntries))
		c.MinRetained = c.MaxEntries
	}
	if c.MaxMemoryBytes <= 0 {
		warn("MaxMemoryBytes", c.MaxMemoryBytes, def.MaxMemoryBytes)
		c.MaxMemoryBytes = def.MaxMemoryBytes
	}
	if c.MemoryCheckIntervalOps <= 0 {
		warn("MemoryCheckIntervalOps", int64(c.MemoryCheckIntervalOps), int64(def.MemoryCheckIntervalOps))
		c.MemoryCheckIntervalOps = def.MemoryCheckIntervalOps
	}
	if c.RecalculateIntervalOps <= 0 {
		warn("RecalculateIntervalOps", int64(c.RecalculateIntervalOps), int64(def.RecalculateIntervalOps))
		c.RecalculateIntervalOps = def.RecalculateIntervalOps
	}
	return c
}
