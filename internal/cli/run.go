package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/inkwell/internal/engine"
	"github.com/dshills/inkwell/internal/metrics"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	Ops       int
	Seed      uint64
	MaxPoints int
	Watch     bool
	Metrics   bool
}

// RunReport is the output of the run command.
type RunReport struct {
	Workload Result       `json:"workload"`
	Stats    engine.Stats `json:"stats"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a synthetic editing workload",
		Long: `Run a seeded mix of strokes, undo/redo, batch splits, transforms and
cache lookups against a fresh engine, then print the resulting statistics.

The cache cleanup sweep runs on a ticker at cache.cleanupIntervalMs.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), rootOpts, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&opts.Ops, "ops", "n", 10000, "number of operations")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 1, "random seed")
	cmd.Flags().IntVar(&opts.MaxPoints, "max-points", 200, "maximum points per stroke")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "reload the config file while running")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print Prometheus metrics after the run")

	return cmd
}

func runRun(ctx context.Context, rootOpts *RootOptions, opts *RunOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Ops < 0 {
		return fmt.Errorf("invalid ops %d: must not be negative", opts.Ops)
	}

	cfg, logger, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	m := metrics.New("inkwell")
	e := engine.New(
		engine.WithConfig(cfg),
		engine.WithLogger(logger),
		engine.WithMetrics(m),
		engine.WithTransactionalBatches(),
	)
	defer e.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go tickLoop(ctx, e, cfg.CacheSettings().CleanupInterval)
	if opts.Watch && rootOpts.ConfigPath != "" {
		go func() {
			if err := e.WatchConfig(ctx, rootOpts.ConfigPath); err != nil {
				logger.Warn("config watch stopped", zap.Error(err))
			}
		}()
	}

	res, err := RunWorkload(ctx, e, Workload{
		Ops:       opts.Ops,
		Seed:      opts.Seed,
		MaxPoints: opts.MaxPoints,
	})
	if err != nil {
		return fmt.Errorf("workload interrupted after %d ops: %w", res.Ops, err)
	}
	e.Tick(time.Now())

	report := RunReport{Workload: res, Stats: e.Stats()}
	if err := writeOutput(w, rootOpts.Format, report, func(w io.Writer) error {
		return writeReport(w, report)
	}); err != nil {
		return err
	}
	if opts.Metrics {
		return writeMetrics(w, m.Gatherer())
	}
	return nil
}

// tickLoop drives cache cleanup until ctx is done.
func tickLoop(ctx context.Context, e *engine.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.Tick(now)
		}
	}
}

func writeReport(w io.Writer, r RunReport) error {
	res, st := r.Workload, r.Stats
	_, err := fmt.Fprintf(w, `workload
  ops              %d in %s
  adds             %d
  undo / redo      %d / %d
  batches          %d (%d undone)
  transforms       %d (%d undone)
history
  undo / redo      %d / %d
  memory           %d / %d bytes
  batches logged   %d (%d snapshot bytes)
  transforms       %d
cache
  entries          %d / %d
  memory           %d / %d bytes
  hits / misses    %d / %d (%.1f%%)
  evictions        %d
  rejections       %d
`,
		res.Ops, res.Elapsed.Round(time.Millisecond),
		res.Adds,
		res.Undos, res.Redos,
		res.Batches, res.BatchUndos,
		res.Transforms, res.TransformUndos,
		st.History.UndoCount, st.History.RedoCount,
		st.History.MemoryBytes, st.History.BudgetBytes,
		st.Batches, st.SnapshotBytes,
		st.Transforms,
		st.Cache.Entries, st.Cache.MaxEntries,
		st.Cache.MemoryBytes, st.Cache.BudgetBytes,
		st.Cache.Hits, st.Cache.Misses, st.Cache.HitRate*100,
		st.Cache.Evictions,
		st.Cache.Rejections,
	)
	return err
}
