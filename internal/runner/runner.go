// Package runner dispatches independent backtests onto a bounded worker
// pool, generalizing the donor project's goroutine-per-market engine
// lifecycle to goroutine-per-backtest. Each backtest's internal state is
// confined to its own goroutine; nothing is shared across them except the
// context used to cancel the whole sweep.
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"backtester/internal/backtester"
	"backtester/internal/ledger"
)

// Spec describes one backtest to run as part of a sweep.
type Spec struct {
	Name string // used to label results and the summary file
	Run  func(ctx context.Context) (backtester.Summary, error)

	SummaryPath string // where to write this run's RunSummary JSON; empty skips it
}

// Result pairs a Spec's name with its outcome.
type Result struct {
	Name    string
	Summary backtester.Summary
	Err     error
}

// Run dispatches every spec onto a worker pool of the given size (0 means
// unbounded, subject to Go's own scheduler limits) and waits for every spec
// to return. The first error any spec returns cancels the context passed to
// the others, and ctx cancellation propagates to every in-flight backtest.
// A non-nil returned error is that first error; results from the other
// specs are still returned in results.
func Run(ctx context.Context, specs []Spec, workers int, logger *slog.Logger) ([]Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "runner")

	results := make([]Result, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			summary, err := spec.Run(gctx)
			results[i] = Result{Name: spec.Name, Summary: summary, Err: err}

			if err != nil {
				logger.Error("backtest failed", "name", spec.Name, "error", err)
				return fmt.Errorf("backtest %q: %w", spec.Name, err)
			}

			logger.Info("backtest completed", "name", spec.Name,
				"final_cash", summary.FinalCash, "ticks", summary.TicksProcessed, "bars", summary.BarsEmitted)

			if spec.SummaryPath != "" {
				rs := ledger.RunSummary{
					RunID:        spec.Name,
					EndingEquity: summary.FinalCash,
					TotalFills:   0,
				}
				if werr := ledger.WriteSummary(spec.SummaryPath, rs); werr != nil {
					logger.Error("failed to write run summary", "name", spec.Name, "error", werr)
				}
			}

			return nil
		})
	}

	err := g.Wait()
	return results, err
}
