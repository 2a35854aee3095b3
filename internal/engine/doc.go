// Package engine provides the facade over inkwell's edit history and
// retention cache.
//
// The engine wires several sub-packages together behind one API:
//
//   - history: undo/redo stacks bounded by count and estimated memory
//   - history/batch: composite edits undone and redone as one unit
//   - history/transform: move/scale/rotate gestures with before/after state
//   - cache: complexity-aware cache of derived artifacts keyed by record ID
//   - notify: history:changed and action:updated events
//
// # Thread Safety
//
// All Engine operations are safe for concurrent use. Each component guards
// its own state; events are delivered after the component lock is released,
// so observers may call back into the engine.
//
// # Basic Usage
//
//	e := engine.New(engine.WithLogger(logger))
//	defer e.Close()
//
//	e.Add(record.New(record.KindFreeformPath, points, style))
//	e.Undo()
//	e.Redo()
//
// # Batches
//
// A batch removes some records and adds others as one undoable unit:
//
//	id := e.ExecuteBatch(batch.KindStructuralSplit, []record.ID{a.ID}, record.List{b, c}, "split")
//	e.UndoBatch(id) // a is back, b and c are gone
//	e.RedoBatch(id)
//
// By default observers see every step of a batch. WithTransactionalBatches
// buffers the events and delivers only the final state.
//
// # Cache
//
// Derived artifacts (rasterized strokes, laid-out text) are cached per
// record. Updating or removing a record drops its entry. The host drives
// cleanup with Tick and may fill the cache during idle time with Prewarm:
//
//	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
//	defer cancel()
//	e.Prewarm(ctx, rasterize)
//
// # Configuration
//
// ApplyConfig applies new limits immediately. WatchConfig reloads a config
// file when it changes:
//
//	go e.WatchConfig(ctx, "inkwell.toml")
package engine
