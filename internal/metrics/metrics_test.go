package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.SetHistory(1, 2, 3)
	c.HistoryEvicted(StackUndo, ReasonCount, 1)
	c.HistoryRecalculated()
	c.Batch(OpExecute)
	c.BatchIntegrityFailure()
	c.Transform(OpUndo)
	c.CacheHit()
	c.CacheMiss()
	c.CacheEvicted(ReasonTTL, 1)
	c.CacheRejected()
	c.SetCache(1, 1)
	assert.Nil(t, c.Registry())
	assert.NotNil(t, c.Gatherer())
}

func TestCollectorRecords(t *testing.T) {
	c := New("inkwell")

	c.SetHistory(4, 1, 2048)
	c.HistoryEvicted(StackRedo, ReasonMemory, 3)
	c.HistoryEvicted(StackRedo, ReasonMemory, 0)
	c.CacheHit()
	c.CacheHit()
	c.CacheMiss()
	c.CacheEvicted(ReasonSweep, 2)
	c.SetCache(7, 700)

	assert.Equal(t, 4.0, testutil.ToFloat64(c.HistoryRecords.WithLabelValues(StackUndo)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.HistoryRecords.WithLabelValues(StackRedo)))
	assert.Equal(t, 2048.0, testutil.ToFloat64(c.HistoryMemoryBytes))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.HistoryEvictions.WithLabelValues(StackRedo, ReasonMemory)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CacheMisses))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.CacheEvictions.WithLabelValues(ReasonSweep)))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.CacheEntries))
}

func TestCollectorsAreIsolated(t *testing.T) {
	a := New("inkwell")
	b := New("inkwell")

	a.CacheHit()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.CacheHits))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.CacheHits))

	families, err := a.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
