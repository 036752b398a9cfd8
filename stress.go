package pgbenchmark

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"pgbenchmark/conn"
	"pgbenchmark/types"
)

// StressBenchmark sustains load for a fixed duration instead of a fixed
// run count. Workers execute back to back until the deadline, optionally
// capped at a combined query rate and optionally starting staggered so
// the load ramps up instead of arriving all at once. A spike is a
// sustained test with many workers and no ramp; a soak is one with a
// long duration.
type StressBenchmark struct {
	// NewExecutor opens a dedicated connection for one worker.
	NewExecutor func(ctx context.Context) (conn.Executor, error)

	// SQL is the statement source, literal or file path.
	SQL string

	// Duration is how long the load is sustained. Required.
	Duration time.Duration

	// Workers is how many workers run concurrently. Values below 1 are
	// treated as 1.
	Workers int

	// Ramp staggers worker starts evenly across this period, growing
	// the load from one worker to all of them. Zero starts everyone
	// immediately.
	Ramp time.Duration

	// TargetQPS caps the combined query rate across all workers. Zero
	// means unthrottled.
	TargetQPS int

	// Sink optionally receives every RunResult. It must be safe for
	// concurrent use; live.Bridge is.
	Sink Sink
}

// Run sustains the load until the deadline and returns the combined
// summary. A worker whose statement fails stops with an ExecError; the
// others keep loading until the deadline, and the summary covers every
// completed run. A run cut short by the deadline itself is discarded
// rather than reported as a failure.
func (s StressBenchmark) Run(ctx context.Context) (types.Stats, error) {
	if s.NewExecutor == nil {
		return types.Stats{}, types.ConfigError{Reason: "no executor factory"}
	}
	if s.Duration <= 0 {
		return types.Stats{}, types.ConfigError{Reason: "stress test needs a positive duration"}
	}
	sql, err := resolveSQL(s.SQL)
	if err != nil {
		return types.Stats{}, err
	}

	workers := s.Workers
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithTimeout(ctx, s.Duration)
	defer cancel()

	// One shared ticker distributes the combined rate across workers.
	var throttle <-chan time.Time
	if s.TargetQPS > 0 {
		interval := time.Second / time.Duration(s.TargetQPS)
		if interval <= 0 {
			interval = time.Nanosecond
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		throttle = ticker.C
	}

	var (
		tracker types.Tracker
		counter atomic.Int64
		wg      sync.WaitGroup
	)
	errs := make(types.Errors, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			if s.Ramp > 0 && i > 0 {
				delay := time.Duration(i) * s.Ramp / time.Duration(workers)
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}

			ex, err := s.NewExecutor(ctx)
			if err != nil {
				if ctx.Err() == nil {
					errs[i] = err
				}
				return
			}

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if throttle != nil {
					select {
					case <-ctx.Done():
						return
					case <-throttle:
					}
				}

				attempt := int(counter.Add(1))
				sentAt := time.Now().UTC()
				start := time.Now()
				if err := ex.Exec(ctx, sql); err != nil {
					if ctx.Err() == nil {
						errs[i] = types.ExecError{Run: attempt, Err: err}
					}
					return
				}

				r := types.RunResult{Run: attempt, SentAt: sentAt, Duration: time.Since(start)}
				tracker.Observe(r)
				if s.Sink != nil {
					s.Sink.Offer(r)
				}
			}
		}(i)
	}
	wg.Wait()

	if !errs.Empty() {
		return tracker.Summary(), errs
	}
	return tracker.Summary(), nil
}
