package pgbenchmark

import (
	"context"
	"sync"

	"pgbenchmark/conn"
	"pgbenchmark/types"
)

// ParallelBenchmark runs the same statement from several workers at
// once and merges their results into one summary. Every worker opens
// its own connection through NewExecutor: a shared connection would
// serialize the runs and skew per-run timing.
type ParallelBenchmark struct {
	// NewExecutor opens a dedicated connection for one worker.
	NewExecutor func(ctx context.Context) (conn.Executor, error)

	// SQL is the statement source, literal or file path.
	SQL string

	// Runs is how many times each worker executes the statement.
	Runs int

	// Workers is how many workers run concurrently. Values below 1 are
	// treated as 1.
	Workers int

	// Sink optionally receives every worker's RunResults. It must be
	// safe for concurrent use; live.Bridge is.
	Sink Sink
}

// Run executes all workers and returns the combined summary. All
// workers observe into one shared Tracker, so the combined order
// statistics are as exact as a single worker's. Worker failures are
// collected into a types.Errors value; the summary still covers every
// run that completed before its worker stopped.
func (p ParallelBenchmark) Run(ctx context.Context) (types.Stats, error) {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	if p.NewExecutor == nil {
		return types.Stats{}, types.ConfigError{Reason: "no executor factory"}
	}

	var combined types.Tracker
	errs := make(types.Errors, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			ex, err := p.NewExecutor(ctx)
			if err != nil {
				errs[i] = err
				return
			}

			b := New(ex)
			if err := b.SetSQL(p.SQL); err != nil {
				errs[i] = err
				return
			}
			if err := b.SetRuns(p.Runs); err != nil {
				errs[i] = err
				return
			}
			if err := b.SetSink(observeSink{tracker: &combined, next: p.Sink}); err != nil {
				errs[i] = err
				return
			}

			_, errs[i] = b.Run(ctx)
		}(i)
	}
	wg.Wait()

	if !errs.Empty() {
		return combined.Summary(), errs
	}
	return combined.Summary(), nil
}

// observeSink folds each result into the shared tracker before handing
// it to the caller's sink, if any.
type observeSink struct {
	tracker *types.Tracker
	next    Sink
}

func (s observeSink) Offer(r types.RunResult) {
	s.tracker.Observe(r)
	if s.next != nil {
		s.next.Offer(r)
	}
}
