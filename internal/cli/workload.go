package cli

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/dshills/inkwell/internal/cache"
	"github.com/dshills/inkwell/internal/engine"
	"github.com/dshills/inkwell/internal/history/batch"
	"github.com/dshills/inkwell/internal/history/record"
)

// bytesPerRasterPoint sizes the fake artifact cached for a stroke.
const bytesPerRasterPoint = 64

// Workload describes a synthetic editing session.
type Workload struct {
	Ops       int
	Seed      uint64
	MaxPoints int
}

// Result counts what a workload did.
type Result struct {
	Ops            int           `json:"ops"`
	Adds           int           `json:"adds"`
	Undos          int           `json:"undos"`
	Redos          int           `json:"redos"`
	Batches        int           `json:"batches"`
	BatchUndos     int           `json:"batchUndos"`
	Transforms     int           `json:"transforms"`
	TransformUndos int           `json:"transformUndos"`
	CacheSets      int           `json:"cacheSets"`
	CacheHits      int           `json:"cacheHits"`
	CacheMisses    int           `json:"cacheMisses"`
	Elapsed        time.Duration `json:"elapsed"`
}

// RunWorkload drives e with a seeded random mix of edits, batches,
// transforms and cache lookups. It stops early when ctx is done.
func RunWorkload(ctx context.Context, e *engine.Engine, w Workload) (Result, error) {
	if w.MaxPoints <= 0 {
		w.MaxPoints = 1
	}
	rng := rand.New(rand.NewPCG(w.Seed, w.Seed^0x9e3779b97f4a7c15))
	start := time.Now()

	var (
		res     Result
		batches []batch.ID
	)
	for i := 0; i < w.Ops; i++ {
		if err := ctx.Err(); err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}
		res.Ops++

		switch roll := rng.IntN(100); {
		case roll < 45:
			rec := randomStroke(rng, w.MaxPoints)
			e.Add(rec)
			res.Adds++
			if e.ShouldCache(rec) {
				if e.CacheSet(rec.ID, rasterize(rec), cacheOptions(e, rec)) {
					res.CacheSets++
				}
			}

		case roll < 55:
			if _, ok := e.Undo(); ok {
				res.Undos++
			}

		case roll < 62:
			if _, ok := e.Redo(); ok {
				res.Redos++
			}

		case roll < 72:
			records := e.GetAllRecords()
			if len(records) == 0 {
				continue
			}
			target := records[rng.IntN(len(records))]
			added := splitStroke(target)
			batches = append(batches, e.ExecuteBatch(batch.KindStructuralSplit,
				[]record.ID{target.ID}, added, "split"))
			res.Batches++

		case roll < 77:
			if len(batches) == 0 {
				continue
			}
			id := batches[len(batches)-1]
			batches = batches[:len(batches)-1]
			if e.UndoBatch(id).Success {
				res.BatchUndos++
			}

		case roll < 87:
			records := e.GetAllRecords()
			if len(records) == 0 {
				continue
			}
			before := records[rng.IntN(len(records))]
			after := before.Clone()
			dx, dy := rng.Float64()*20-10, rng.Float64()*20-10
			for j := range after.Points {
				after.Points[j].X += dx
				after.Points[j].Y += dy
			}
			if _, ok := e.RecordTransform(record.List{before}, record.List{after}); ok {
				res.Transforms++
			}

		case roll < 90:
			if e.UndoTransform() {
				res.TransformUndos++
			}

		default:
			records := e.GetAllRecords()
			if len(records) == 0 {
				continue
			}
			rec := records[rng.IntN(len(records))]
			if _, ok := e.CacheGet(rec.ID); ok {
				res.CacheHits++
				continue
			}
			res.CacheMisses++
			if e.ShouldCache(rec) && e.CacheSet(rec.ID, rasterize(rec), cacheOptions(e, rec)) {
				res.CacheSets++
			}
		}
	}

	res.Elapsed = time.Since(start)
	return res, nil
}

func randomStroke(rng *rand.Rand, maxPoints int) *record.Record {
	n := 1 + rng.IntN(maxPoints)
	pts := make([]record.Point, n)
	x, y := rng.Float64()*1000, rng.Float64()*1000
	for i := range pts {
		x += rng.Float64()*4 - 2
		y += rng.Float64()*4 - 2
		pts[i] = record.Point{X: x, Y: y}
		if rng.IntN(2) == 0 {
			pts[i].Pressure = rng.Float64()
			pts[i].HasPressure = true
		}
	}
	return record.New(record.KindFreeformPath, pts, record.Style{Color: "#222", Width: 2})
}

// splitStroke cuts a stroke in two at its midpoint.
func splitStroke(r *record.Record) record.List {
	mid := len(r.Points) / 2
	first := record.New(r.Kind, append([]record.Point(nil), r.Points[:mid+1]...), r.Style)
	second := record.New(r.Kind, append([]record.Point(nil), r.Points[mid:]...), r.Style)
	return record.List{first, second}
}

// rasterize stands in for an expensive derived artifact.
func rasterize(r *record.Record) []byte {
	return make([]byte, len(r.Points)*bytesPerRasterPoint)
}

func cacheOptions(e *engine.Engine, r *record.Record) cache.SetOptions {
	return cache.SetOptions{
		Complexity: e.Complexity(r),
		MemorySize: int64(len(r.Points) * bytesPerRasterPoint),
	}
}
