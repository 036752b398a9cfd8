// Package pgbenchmark executes a fixed SQL statement repeatedly against
// a database, measures per-run latency, and keeps running aggregate
// statistics. Each run can additionally be streamed to live dashboard
// subscribers through the live package.
package pgbenchmark

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"pgbenchmark/conn"
	"pgbenchmark/types"
)

// Benchmark runs one configured statement a fixed number of times,
// sequentially: a run completes before the next begins, because
// overlapping runs would invalidate per-run timing. A Benchmark
// iterates exactly once; to run again, configure a fresh instance.
type Benchmark struct {
	executor conn.Executor
	sink     Sink
	sql      string
	runs     int

	started  bool
	finished bool
	run      int
	result   types.RunResult
	err      error
	tracker  types.Tracker
}

// New returns a Benchmark executing through ex. The run count defaults
// to 1; configure with SetSQL and SetRuns before iterating.
func New(ex conn.Executor) *Benchmark {
	return &Benchmark{executor: ex, runs: 1}
}

// SetSQL configures the statement to benchmark. A src naming a readable
// file is replaced by that file's contents; anything else is used as
// the statement verbatim. Calling SetSQL again before iteration starts
// fully replaces the previous statement.
func (b *Benchmark) SetSQL(src string) error {
	if b.started {
		return types.StateError{Op: "SetSQL after iteration started"}
	}
	sql, err := resolveSQL(src)
	if err != nil {
		return err
	}
	b.sql = sql
	return nil
}

// resolveSQL turns a statement source into statement text: a path to a
// readable file is replaced by the file's contents, anything else is
// taken verbatim.
func resolveSQL(src string) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", types.ConfigError{Reason: "empty statement"}
	}
	if info, err := os.Stat(src); err == nil && info.Mode().IsRegular() {
		data, err := os.ReadFile(src)
		if err != nil {
			return "", types.ConfigError{Reason: fmt.Sprintf("reading %s: %v", src, err)}
		}
		src = strings.TrimSpace(string(data))
		if src == "" {
			return "", types.ConfigError{Reason: "statement file is empty"}
		}
	}
	return src, nil
}

// SQL returns the resolved statement text.
func (b *Benchmark) SQL() string {
	return b.sql
}

// SetRuns configures how many times the statement executes.
func (b *Benchmark) SetRuns(n int) error {
	if b.started {
		return types.StateError{Op: "SetRuns after iteration started"}
	}
	if n < 1 {
		return types.ConfigError{Reason: fmt.Sprintf("run count must be at least 1, got %d", n)}
	}
	b.runs = n
	return nil
}

// Runs returns the configured run count.
func (b *Benchmark) Runs() int {
	return b.runs
}

// SetSink attaches a sink that receives every RunResult as it is
// produced. The engine calls Offer synchronously, so sinks must not
// block; live.Bridge is the canonical implementation.
func (b *Benchmark) SetSink(s Sink) error {
	if b.started {
		return types.StateError{Op: "SetSink after iteration started"}
	}
	b.sink = s
	return nil
}

// Next advances the benchmark by one run and reports whether a result
// is available via Result. It returns false once all runs completed, a
// run failed, or ctx was cancelled; Err reports which. Cancellation is
// only observed between runs: a run already started is allowed to
// finish.
func (b *Benchmark) Next(ctx context.Context) bool {
	if b.err != nil {
		return false
	}
	if b.finished {
		b.err = types.StateError{Op: "iteration restarted after exhaustion"}
		return false
	}
	if !b.started {
		if err := b.validate(); err != nil {
			b.err = err
			return false
		}
		b.started = true
	}
	if b.run >= b.runs {
		b.finished = true
		return false
	}

	select {
	case <-ctx.Done():
		b.err = ctx.Err()
		return false
	default:
	}

	sentAt := time.Now().UTC()
	start := time.Now()
	if err := b.executor.Exec(ctx, b.sql); err != nil {
		b.err = types.ExecError{Run: b.run + 1, Err: err}
		return false
	}
	elapsed := time.Since(start)

	b.run++
	b.result = types.RunResult{Run: b.run, SentAt: sentAt, Duration: elapsed}
	b.tracker.Observe(b.result)
	if b.sink != nil {
		b.sink.Offer(b.result)
	}
	return true
}

// Result returns the RunResult produced by the last successful Next.
func (b *Benchmark) Result() types.RunResult {
	return b.result
}

// Err returns the error that terminated iteration, or nil after a
// normal completion.
func (b *Benchmark) Err() error {
	return b.err
}

// Summary returns the aggregate statistics over the runs observed so
// far. It may be called mid-run for a live partial summary; with zero
// observed runs it returns a zero-valued Stats. A failed run is never
// observed, so the summary reflects only completed runs.
func (b *Benchmark) Summary() types.Stats {
	return b.tracker.Summary()
}

// Run drains the remaining runs and returns the final summary.
func (b *Benchmark) Run(ctx context.Context) (types.Stats, error) {
	for b.Next(ctx) {
	}
	return b.Summary(), b.Err()
}

func (b *Benchmark) validate() error {
	if b.executor == nil {
		return types.ConfigError{Reason: "no database connection"}
	}
	if b.sql == "" {
		return types.ConfigError{Reason: "no statement configured"}
	}
	return nil
}
