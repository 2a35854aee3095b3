package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/inkwell/internal/cache"
	"github.com/dshills/inkwell/internal/history"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, NewValidator().Validate(cfg))

	assert.Equal(t, 500, cfg.MaxHistoryEntries)
	assert.Equal(t, 100, cfg.MaxRedoEntries)
	assert.Equal(t, int64(64<<20), cfg.MaxMemoryBytes)
	assert.Equal(t, 10, cfg.MemoryCheckIntervalOps)
	assert.Equal(t, 100, cfg.MemoryRecalculateIntervalOps)
	assert.Equal(t, 50, cfg.MaxBatchOperations)
	assert.True(t, cfg.UseIncrementalBatchStorage)
	assert.Equal(t, 200, cfg.Cache.MaxEntries)
	assert.Equal(t, int64(32<<20), cfg.Cache.MaxMemoryBytes)
	assert.Equal(t, int64(300000), cfg.Cache.TTLMs)
	assert.Equal(t, int64(30000), cfg.Cache.CleanupIntervalMs)
	assert.Equal(t, 1.0, cfg.Cache.ComplexityWeight)
	assert.Equal(t, 0.5, cfg.Cache.AccessWeight)
}

func TestConversions(t *testing.T) {
	cfg := Default()
	assert.Equal(t, history.DefaultConfig(), cfg.History())
	assert.Equal(t, cache.DefaultConfig(), cfg.CacheSettings())
	assert.Equal(t, 50, cfg.Batch().MaxOperations)
	assert.True(t, cfg.Batch().Incremental)
	assert.Equal(t, int64(256), cfg.Estimator().RecordOverhead)
}

func TestParseTOML(t *testing.T) {
	data := []byte(`
maxHistoryEntries = 42
useIncrementalBatchStorage = false

[cache]
maxEntries = 7
ttlMs = 1500
accessWeight = 0.25

[logging]
level = "debug"
`)
	cfg, err := Parse("test.toml", data, FormatTOML)
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.MaxHistoryEntries)
	assert.False(t, cfg.UseIncrementalBatchStorage)
	assert.Equal(t, 7, cfg.Cache.MaxEntries)
	assert.Equal(t, 1500*time.Millisecond, cfg.CacheSettings().TTL)
	assert.Equal(t, 0.25, cfg.Cache.AccessWeight)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// untouched options keep their defaults
	assert.Equal(t, 100, cfg.MaxRedoEntries)
	assert.Equal(t, 1.0, cfg.Cache.ComplexityWeight)
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
maxRedoEntries: 3
cache:
  complexityThreshold: 12.5
memory:
  bytesPerPoint: 8
`)
	cfg, err := Parse("test.yaml", data, FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxRedoEntries)
	assert.Equal(t, 12.5, cfg.Cache.ComplexityThreshold)
	assert.Equal(t, int64(8), cfg.Memory.BytesPerPoint)
	assert.Equal(t, 500, cfg.MaxHistoryEntries)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("bad.toml", []byte("maxHistoryEntries = [oops"), FormatTOML)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "bad.toml", perr.Path)
	assert.Positive(t, perr.Line)
	assert.Contains(t, perr.Error(), "bad.toml")

	_, err = Parse("bad.yaml", []byte("maxHistoryEntries: [oops"), FormatYAML)
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "bad.yaml", perr.Path)

	_, err = Parse("x.json", nil, Format("json"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(filepath.Join(dir, "config.ini"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	path := filepath.Join(dir, "inkwell.yml")
	require.NoError(t, os.WriteFile(path, []byte("maxBatchOperations: 9\n"), 0o644))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.MaxBatchOperations)
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatTOML, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			want := Default()
			want.Cache.MaxEntries = 17
			want.Logging.Development = true

			data, err := Encode(want, format)
			require.NoError(t, err)
			got, err := Parse("encoded", data, format)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestSanitizeClampsInvalidValues(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	cfg := Default()
	cfg.MaxHistoryEntries = 0
	cfg.MinHistoryEntries = 20
	cfg.Cache.MaxEntries = -5
	cfg.Cache.AccessWeight = -1
	cfg.Logging.Level = "verbose"

	got := Sanitize(cfg, zap.New(core))

	want := Default()
	want.MinHistoryEntries = 20
	assert.Equal(t, want, got)

	fields := map[string]bool{}
	for _, e := range logs.FilterMessage("invalid config value clamped").All() {
		fields[e.ContextMap()["field"].(string)] = true
	}
	assert.True(t, fields["maxHistoryEntries"])
	assert.True(t, fields["cache.maxEntries"])
	assert.True(t, fields["cache.accessWeight"])
	assert.True(t, fields["logging.level"])
}

func TestSanitizeCrossField(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	cfg := Default()
	cfg.MaxHistoryEntries = 5
	cfg.MinHistoryEntries = 8

	got := Sanitize(cfg, zap.New(core))
	assert.Equal(t, 5, got.MaxHistoryEntries)
	assert.Equal(t, 5, got.MinHistoryEntries)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "ltefield", logs.All()[0].ContextMap()["rule"])
}

func TestSanitizeValidConfigIsQuiet(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := Sanitize(Default(), zap.New(core))
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 0, logs.Len())
}

func TestApplyEnv(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	env := map[string]string{
		"INKWELL_MAX_HISTORY_ENTRIES":           "250",
		"INKWELL_USE_INCREMENTAL_BATCH_STORAGE": "off",
		"INKWELL_CACHE_TTL_MS":                  "1000",
		"INKWELL_CACHE_COMPLEXITY_WEIGHT":       "2.5",
		"INKWELL_LOGGING_LEVEL":                 "warn",
		"INKWELL_MEMORY_BYTES_PER_CHAR":         "not-a-number",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := ApplyEnv(Default(), lookup, zap.New(core))
	assert.Equal(t, 250, cfg.MaxHistoryEntries)
	assert.False(t, cfg.UseIncrementalBatchStorage)
	assert.Equal(t, int64(1000), cfg.Cache.TTLMs)
	assert.Equal(t, 2.5, cfg.Cache.ComplexityWeight)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, int64(2), cfg.Memory.BytesPerChar)
	assert.Equal(t, 1, logs.FilterMessage("invalid environment override ignored").Len())
}

func TestEnvNames(t *testing.T) {
	names := EnvNames()
	assert.Contains(t, names, "INKWELL_MAX_MEMORY_BYTES")
	assert.Contains(t, names, "INKWELL_CACHE_MAX_ENTRIES")
	assert.Contains(t, names, "INKWELL_CACHE_RECENCY_HORIZON_MS")
	assert.Contains(t, names, "INKWELL_LOGGING_DEVELOPMENT")
}

func TestToSnake(t *testing.T) {
	tests := map[string]string{
		"maxEntries":                 "MAX_ENTRIES",
		"ttlMs":                      "TTL_MS",
		"cache":                      "CACHE",
		"useIncrementalBatchStorage": "USE_INCREMENTAL_BATCH_STORAGE",
	}
	for in, want := range tests {
		assert.Equal(t, want, toSnake(in), in)
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inkwell.toml")
	require.NoError(t, os.WriteFile(path, []byte("maxHistoryEntries = 10\n"), 0o644))

	got := make(chan Config, 4)
	handler := func(cfg Config) {
		select {
		case got <- cfg:
		default:
		}
	}
	w, err := NewWatcher(path, handler, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Let the watch loop start before writing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("maxHistoryEntries = 77\n"), 0o644))

	select {
	case cfg := <-got:
		assert.Equal(t, 77, cfg.MaxHistoryEntries)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	assert.GreaterOrEqual(t, w.Reloads(), 1)

	cancel()
	require.NoError(t, <-done)
	assert.ErrorIs(t, w.Run(context.Background()), ErrWatcherClosed)
}

func TestNewWatcherRejectsUnknownFormat(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "inkwell.ini"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
