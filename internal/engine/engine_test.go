package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/inkwell/internal/cache"
	"github.com/dshills/inkwell/internal/config"
	"github.com/dshills/inkwell/internal/history/batch"
	"github.com/dshills/inkwell/internal/history/record"
	"github.com/dshills/inkwell/internal/metrics"
	"github.com/dshills/inkwell/internal/notify"
)

// ============================================================================
// Helpers
// ============================================================================

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func stroke(id string, n int) *record.Record {
	pts := make([]record.Point, n)
	for i := range pts {
		pts[i] = record.Point{X: float64(i), Y: float64(i)}
	}
	return &record.Record{ID: record.ID(id), Kind: record.KindFreeformPath, Points: pts}
}

func ids(l record.List) []string {
	out := make([]string, len(l))
	for i, r := range l {
		out[i] = string(r.ID)
	}
	return out
}

// recorder collects history:changed payloads.
type recorder struct {
	mu     sync.Mutex
	events []notify.HistoryChanged
}

func (r *recorder) observe(ev notify.Event) {
	if p, ok := ev.Payload.(notify.HistoryChanged); ok {
		r.mu.Lock()
		r.events = append(r.events, p)
		r.mu.Unlock()
	}
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func (r *recorder) all() []notify.HistoryChanged {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.HistoryChanged(nil), r.events...)
}

// ============================================================================
// History
// ============================================================================

func TestEngineUndoRedoScenario(t *testing.T) {
	e := New()
	defer e.Close()

	e.Add(stroke("A", 1))
	e.Add(stroke("B", 1))
	e.Add(stroke("C", 1))

	r, ok := e.Undo()
	require.True(t, ok)
	assert.Equal(t, record.ID("C"), r.ID)
	assert.Equal(t, []string{"A", "B"}, ids(e.GetAllRecords()))
	assert.True(t, e.CanRedo())

	r, ok = e.Redo()
	require.True(t, ok)
	assert.Equal(t, record.ID("C"), r.ID)
	assert.Equal(t, []string{"A", "B", "C"}, ids(e.GetAllRecords()))
	assert.False(t, e.CanRedo())
}

func TestEngineMaxHistoryScenario(t *testing.T) {
	cfg := config.Default()
	cfg.MaxHistoryEntries = 2
	cfg.MinHistoryEntries = 0
	e := New(WithConfig(cfg))
	defer e.Close()

	e.Add(stroke("A", 1))
	e.Add(stroke("B", 1))
	e.Add(stroke("C", 1))
	assert.Equal(t, []string{"B", "C"}, ids(e.GetAllRecords()))
}

func TestEngineEmptyStacks(t *testing.T) {
	e := New()
	defer e.Close()

	_, ok := e.Undo()
	assert.False(t, ok)
	_, ok = e.Redo()
	assert.False(t, ok)
	assert.False(t, e.RemoveByID("missing"))
	assert.False(t, e.UpdateAction(stroke("missing", 1)))
	assert.False(t, e.UndoTransform())
}

func TestEngineUpdateActionEmitsChanges(t *testing.T) {
	e := New()
	defer e.Close()

	var got []notify.ActionUpdated
	e.SubscribeTopic(notify.TopicActionUpdated, func(ev notify.Event) {
		got = append(got, ev.Payload.(notify.ActionUpdated))
	})

	e.Add(stroke("A", 1))
	updated := stroke("A", 3)
	require.True(t, e.UpdateAction(updated))

	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].ID)
	assert.Contains(t, got[0].Changes, "points")

	r, ok := e.Get("A")
	require.True(t, ok)
	assert.Len(t, r.Points, 3)
}

func TestEnginePeekAndCounts(t *testing.T) {
	e := New()
	defer e.Close()

	e.Add(stroke("A", 1))
	e.Add(stroke("B", 1))
	e.Undo()

	info, ok := e.PeekUndo()
	require.True(t, ok)
	assert.Equal(t, record.ID("A"), info.ID)
	info, ok = e.PeekRedo()
	require.True(t, ok)
	assert.Equal(t, record.ID("B"), info.ID)
	assert.Equal(t, 1, e.UndoCount())
	assert.Equal(t, 1, e.RedoCount())
	assert.Positive(t, e.MemoryUsage())
}

// ============================================================================
// Batches
// ============================================================================

func TestEngineBatchScenario(t *testing.T) {
	for _, incremental := range []bool{true, false} {
		name := "full"
		if incremental {
			name = "incremental"
		}
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			cfg.UseIncrementalBatchStorage = incremental
			e := New(WithConfig(cfg))
			defer e.Close()

			e.Add(stroke("A", 2))
			id := e.ExecuteBatch(batch.KindStructuralSplit,
				[]record.ID{"A"}, record.List{stroke("B", 1), stroke("C", 1)}, "split")
			assert.Equal(t, []string{"B", "C"}, ids(e.GetAllRecords()))
			assert.True(t, e.CanUndoBatch(id))

			res := e.UndoBatch(id)
			require.True(t, res.Success)
			assert.ElementsMatch(t, []record.ID{"B", "C"}, res.RemovedIDs)
			assert.Equal(t, []string{"A"}, ids(res.Restored))
			assert.Equal(t, []string{"A"}, ids(e.GetAllRecords()))
			assert.True(t, e.CanRedoBatch(id))

			require.True(t, e.RedoBatch(id))
			assert.Equal(t, []string{"B", "C"}, ids(e.GetAllRecords()))

			info, ok := e.Batch(id)
			require.True(t, ok)
			assert.Equal(t, []record.ID{"A"}, info.RemovedIDs)
			assert.False(t, info.Undone)
		})
	}
}

func TestEngineBatchEventsAreStepwiseByDefault(t *testing.T) {
	e := New()
	defer e.Close()

	rec := &recorder{}
	e.Subscribe(rec.observe)
	e.Add(stroke("A", 1))
	rec.reset()

	e.ExecuteBatch(batch.KindStructuralSplit, []record.ID{"A"}, record.List{stroke("B", 1)}, "")

	events := rec.all()
	require.Greater(t, len(events), 1)
	// The removal is visible before the addition.
	assert.Equal(t, 0, events[0].Count)
	assert.Equal(t, 1, events[len(events)-1].Count)
}

func TestEngineTransactionalBatches(t *testing.T) {
	e := New(WithTransactionalBatches())
	defer e.Close()

	rec := &recorder{}
	e.Subscribe(rec.observe)
	e.Add(stroke("A", 1))
	rec.reset()

	id := e.ExecuteBatch(batch.KindStructuralSplit, []record.ID{"A"}, record.List{stroke("B", 1), stroke("C", 1)}, "")
	assert.Equal(t, []notify.HistoryChanged{{CanUndo: true, Count: 2}}, rec.all())

	rec.reset()
	e.UndoBatch(id)
	assert.Equal(t, []notify.HistoryChanged{{CanUndo: true, Count: 1}}, rec.all())

	rec.reset()
	e.RedoBatch(id)
	assert.Equal(t, []notify.HistoryChanged{{CanUndo: true, Count: 2}}, rec.all())
}

func TestEngineBatchInvalidatesCache(t *testing.T) {
	e := New()
	defer e.Close()

	e.Add(stroke("A", 1))
	e.CacheSet("A", "raster-A", cache.SetOptions{Complexity: 100, MemorySize: 10})

	id := e.ExecuteBatch(batch.KindMultiDelete, []record.ID{"A"}, nil, "delete")
	assert.False(t, e.CacheHas("A"))

	e.UndoBatch(id)
	e.CacheSet("A", "raster-A", cache.SetOptions{Complexity: 100, MemorySize: 10})
	require.True(t, e.RedoBatch(id))
	assert.False(t, e.CacheHas("A"))
}

// ============================================================================
// Transforms
// ============================================================================

func TestEngineTransformScenario(t *testing.T) {
	e := New()
	defer e.Close()

	a0 := stroke("A", 2)
	a1 := a0.Clone()
	a1.Points[0].X += 10
	e.Add(a0.Clone())

	_, ok := e.RecordTransform(record.List{a0}, record.List{a1})
	require.True(t, ok)
	got, _ := e.Get("A")
	assert.True(t, got.Equal(a1))
	assert.True(t, e.CanUndoTransform())

	require.True(t, e.UndoTransform())
	got, _ = e.Get("A")
	assert.True(t, got.Equal(a0))
	assert.False(t, e.CanUndoTransform())
}

func TestEngineTransformInvalidatesCache(t *testing.T) {
	e := New()
	defer e.Close()

	a0 := stroke("A", 2)
	a1 := a0.Clone()
	a1.Points[1].Y = 42
	e.Add(a0.Clone())
	e.CacheSet("A", "raster-A", cache.SetOptions{Complexity: 100, MemorySize: 10})

	e.RecordTransform(record.List{a0}, record.List{a1})
	assert.False(t, e.CacheHas("A"))
}

func TestEngineInvalidatesCacheAfterClose(t *testing.T) {
	e := New()
	a0 := stroke("A", 2)
	e.Add(a0.Clone())
	e.Close()

	a1 := a0.Clone()
	a1.Points[0].X = 7
	e.CacheSet("A", "old", cache.SetOptions{Complexity: 100, MemorySize: 10})
	require.True(t, e.UpdateAction(a1))
	assert.False(t, e.CacheHas("A"))

	a2 := a1.Clone()
	a2.Points[1].Y = 42
	_, ok := e.RecordTransform(record.List{a1}, record.List{a2})
	require.True(t, ok)
	e.CacheSet("A", "transformed", cache.SetOptions{Complexity: 100, MemorySize: 10})
	require.True(t, e.UndoTransform())
	assert.False(t, e.CacheHas("A"))

	got, ok := e.Get("A")
	require.True(t, ok)
	assert.True(t, got.Equal(a1))
}

// ============================================================================
// Cache
// ============================================================================

func TestEngineCacheMaxEntriesScenario(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.MaxEntries = 1
	e := New(WithConfig(cfg))
	defer e.Close()

	require.True(t, e.CacheSet("k1", "v1", cache.SetOptions{Complexity: 1, MemorySize: 10}))
	require.True(t, e.CacheSet("k2", "v2", cache.SetOptions{Complexity: 1, MemorySize: 10}))

	_, ok := e.CacheGet("k1")
	assert.False(t, ok)
	v, ok := e.CacheGet("k2")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestEngineCacheTTLScenario(t *testing.T) {
	clock := newFakeClock()
	e := New(WithClock(clock.Now))
	defer e.Close()

	e.CacheSet("k", "v", cache.SetOptions{Complexity: 1, MemorySize: 10, TTL: 50 * time.Millisecond})
	clock.Advance(60 * time.Millisecond)

	_, ok := e.CacheGet("k")
	assert.False(t, ok)
}

func TestEngineCacheDeleteAndRemove(t *testing.T) {
	e := New()
	defer e.Close()

	e.Add(stroke("A", 1))
	e.CacheSet("A", 1, cache.SetOptions{MemorySize: 1})
	e.CacheSet("B", 2, cache.SetOptions{MemorySize: 1})

	assert.True(t, e.RemoveByID("A"))
	assert.False(t, e.CacheHas("A"))

	assert.True(t, e.CacheDelete("B"))
	assert.False(t, e.CacheDelete("B"))
}

func TestEngineShouldCache(t *testing.T) {
	e := New()
	defer e.Close()

	assert.True(t, e.ShouldCache(stroke("big", 80)))
	assert.False(t, e.ShouldCache(stroke("small", 3)))

	erase := stroke("erase", 80)
	erase.Kind = record.KindErase
	assert.False(t, e.ShouldCache(erase))
}

func TestEngineTick(t *testing.T) {
	clock := newFakeClock()
	e := New(WithClock(clock.Now))
	defer e.Close()

	e.CacheSet("short", 1, cache.SetOptions{MemorySize: 1, TTL: time.Second})
	e.CacheSet("long", 2, cache.SetOptions{MemorySize: 1, TTL: time.Hour})
	clock.Advance(2 * time.Second)

	assert.Equal(t, 1, e.Tick(clock.Now()))
	assert.True(t, e.CacheHas("long"))
	assert.Equal(t, 1, e.Stats().Cache.Entries)
}

func TestEnginePrewarm(t *testing.T) {
	e := New()
	defer e.Close()

	e.Add(stroke("medium", 60))
	e.Add(stroke("small", 2))
	e.Add(stroke("large", 90))

	var order []record.ID
	derive := func(_ context.Context, r *record.Record) (any, cache.SetOptions, error) {
		order = append(order, r.ID)
		return "raster-" + string(r.ID), cache.SetOptions{MemorySize: 64}, nil
	}

	n, err := e.Prewarm(context.Background(), derive)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []record.ID{"large", "medium"}, order)
	assert.True(t, e.CacheHas("large"))
	assert.False(t, e.CacheHas("small"))

	// Cached records are not derived again.
	order = nil
	n, err = e.Prewarm(context.Background(), derive)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, order)
}

func TestEnginePrewarmStopsOnCancel(t *testing.T) {
	e := New()
	defer e.Close()
	e.Add(stroke("A", 60))
	e.Add(stroke("B", 70))

	ctx, cancel := context.WithCancel(context.Background())
	derive := func(_ context.Context, r *record.Record) (any, cache.SetOptions, error) {
		cancel()
		return r.ID, cache.SetOptions{MemorySize: 1}, nil
	}

	n, err := e.Prewarm(ctx, derive)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
}

func TestEnginePrewarmDeriveErrorSkips(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e := New(WithLogger(zap.New(core)))
	defer e.Close()
	e.Add(stroke("A", 60))

	n, err := e.Prewarm(context.Background(), func(context.Context, *record.Record) (any, cache.SetOptions, error) {
		return nil, cache.SetOptions{}, errors.New("boom")
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, logs.FilterMessage("cache prewarm: derive failed").Len())
}

func TestEnginePrewarmRequiresDerive(t *testing.T) {
	e := New()
	defer e.Close()
	_, err := e.Prewarm(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoDerive)
}

// ============================================================================
// Configuration
// ============================================================================

func TestEngineApplyConfig(t *testing.T) {
	e := New()
	defer e.Close()

	for _, id := range []string{"A", "B", "C", "D", "E"} {
		e.Add(stroke(id, 1))
	}
	before := e.MemoryUsage()

	cfg := e.Config()
	cfg.MaxHistoryEntries = 3
	cfg.MinHistoryEntries = 1
	cfg.Cache.MaxEntries = 7
	cfg.Memory.RecordOverheadBytes *= 2
	e.ApplyConfig(cfg)

	assert.Equal(t, []string{"C", "D", "E"}, ids(e.GetAllRecords()))
	assert.Equal(t, 3, e.Config().MaxHistoryEntries)
	assert.Equal(t, 7, e.Stats().Cache.MaxEntries)
	assert.Greater(t, e.MemoryUsage(), before*3/5)
}

func TestEngineApplyConfigClampsInvalidValues(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e := New(WithLogger(zap.New(core)))
	defer e.Close()

	cfg := config.Default()
	cfg.MaxHistoryEntries = -1
	e.ApplyConfig(cfg)

	assert.Equal(t, config.Default().MaxHistoryEntries, e.Config().MaxHistoryEntries)
	assert.Equal(t, 1, logs.FilterMessage("invalid config value clamped").Len())
}

func TestEngineWatchConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inkwell.toml")
	require.NoError(t, os.WriteFile(path, []byte("maxHistoryEntries = 20\n"), 0o644))

	e := New()
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.WatchConfig(ctx, path) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("maxHistoryEntries = 77\n"), 0o644))

	require.Eventually(t, func() bool {
		return e.Config().MaxHistoryEntries == 77
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestEngineStatsAndMetrics(t *testing.T) {
	m := metrics.New("inkwell")
	e := New(WithMetrics(m))
	defer e.Close()

	e.Add(stroke("A", 1))
	id := e.ExecuteBatch(batch.KindStructuralSplit, []record.ID{"A"}, record.List{stroke("B", 1)}, "")
	e.UndoBatch(id)
	e.CacheGet("missing")

	stats := e.Stats()
	assert.Equal(t, 1, stats.History.UndoCount)
	assert.Equal(t, 0, stats.Batches)
	assert.Positive(t, stats.SnapshotBytes)
	assert.Equal(t, uint64(1), stats.Cache.Misses)

	assert.Same(t, m, e.Metrics())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchOperations.WithLabelValues(metrics.OpExecute)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchOperations.WithLabelValues(metrics.OpUndo)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
}

func TestEngineClearHistory(t *testing.T) {
	e := New()
	defer e.Close()

	e.Add(stroke("A", 1))
	e.ExecuteBatch(batch.KindStructuralSplit, []record.ID{"A"}, record.List{stroke("B", 1)}, "")
	e.CacheSet("B", 1, cache.SetOptions{MemorySize: 1})

	e.ClearHistory()
	stats := e.Stats()
	assert.Equal(t, 0, stats.History.UndoCount)
	assert.Equal(t, 0, stats.Batches)
	assert.Equal(t, 0, stats.Transforms)
	assert.Equal(t, 0, stats.Cache.Entries)
}

func TestEngineClose(t *testing.T) {
	e := New()
	rec := &recorder{}
	e.Subscribe(rec.observe)

	e.Close()
	e.Close()

	e.Add(stroke("A", 1))
	assert.Empty(t, rec.all())
	assert.Equal(t, []string{"A"}, ids(e.GetAllRecords()))

	assert.ErrorIs(t, e.WatchConfig(context.Background(), "inkwell.toml"), ErrClosed)
	_, err := e.Prewarm(context.Background(), func(context.Context, *record.Record) (any, cache.SetOptions, error) {
		return nil, cache.SetOptions{}, nil
	})
	assert.ErrorIs(t, err, ErrClosed)
}
