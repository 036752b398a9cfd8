package pgbenchmark

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"pgbenchmark/conn"
	"pgbenchmark/types"
)

func TestParallelRun(t *testing.T) {
	var opened atomic.Int32
	p := ParallelBenchmark{
		NewExecutor: func(context.Context) (conn.Executor, error) {
			opened.Add(1)
			return &fakeExec{}, nil
		},
		SQL:     "SELECT 1;",
		Runs:    20,
		Workers: 4,
	}

	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	if got, want := int(opened.Load()), 4; got != want {
		t.Errorf("Expected %d connections, one per worker, got %d", want, got)
	}
	if got, want := stats.Runs, 80; got != want {
		t.Errorf("Expected merged summary over %d runs, got %d", want, got)
	}
	if stats.MinTime > stats.AvgTime || stats.AvgTime > stats.MaxTime {
		t.Errorf("Expected min <= avg <= max, got min=%v avg=%v max=%v",
			stats.MinTime, stats.AvgTime, stats.MaxTime)
	}
	if stats.MedianTime < stats.MinTime || stats.MedianTime > stats.MaxTime {
		t.Errorf("Expected min <= median <= max, got min=%v median=%v max=%v",
			stats.MinTime, stats.MedianTime, stats.MaxTime)
	}
}

func TestParallelSharedSink(t *testing.T) {
	var mu sync.Mutex
	var count int
	sink := sinkFunc(func() {
		mu.Lock()
		count++
		mu.Unlock()
	})

	p := ParallelBenchmark{
		NewExecutor: func(context.Context) (conn.Executor, error) {
			return &fakeExec{}, nil
		},
		SQL:     "SELECT 1;",
		Runs:    10,
		Workers: 3,
		Sink:    sink,
	}
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	if got, want := count, 30; got != want {
		t.Errorf("Expected %d sink deliveries, got %d", want, got)
	}
}

func TestParallelWorkerFailure(t *testing.T) {
	var opened atomic.Int32
	p := ParallelBenchmark{
		NewExecutor: func(context.Context) (conn.Executor, error) {
			// Third connection fails on its first run.
			if opened.Add(1) == 3 {
				return &fakeExec{failOn: 1}, nil
			}
			return &fakeExec{}, nil
		},
		SQL:     "SELECT 1;",
		Runs:    5,
		Workers: 3,
	}

	stats, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("Expected an error, didn't get one")
	}
	// The healthy workers' runs still count.
	if got, want := stats.Runs, 10; got != want {
		t.Errorf("Expected summary over %d runs, got %d", want, got)
	}
}

func TestParallelMissingFactory(t *testing.T) {
	_, err := ParallelBenchmark{SQL: "SELECT 1;", Runs: 1}.Run(context.Background())
	if err == nil {
		t.Error("Expected an error without an executor factory")
	}
}

// sinkFunc adapts a func to the Sink interface for tests.
type sinkFunc func()

func (f sinkFunc) Offer(types.RunResult) { f() }
