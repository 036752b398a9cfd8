package pgbenchmark

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"pgbenchmark/types"
)

// fakeExec counts executions and can be told to fail on a given run.
type fakeExec struct {
	calls   int
	failOn  int
	lastSQL string
}

func (f *fakeExec) Exec(_ context.Context, statement string) error {
	f.calls++
	f.lastSQL = statement
	if f.failOn != 0 && f.calls == f.failOn {
		return fmt.Errorf("boom")
	}
	return nil
}

// collectSink records every offered result.
type collectSink struct {
	results []types.RunResult
}

func (s *collectSink) Offer(r types.RunResult) {
	s.results = append(s.results, r)
}

func newConfigured(t *testing.T, ex *fakeExec, runs int) *Benchmark {
	t.Helper()
	b := New(ex)
	if err := b.SetSQL("SELECT 1;"); err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	if err := b.SetRuns(runs); err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	return b
}

func TestIterationYieldsExactlyN(t *testing.T) {
	ex := &fakeExec{}
	b := newConfigured(t, ex, 10)

	var runs []int
	for b.Next(context.Background()) {
		runs = append(runs, b.Result().Run)
	}
	if err := b.Err(); err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	if got, want := len(runs), 10; got != want {
		t.Fatalf("Expected %d results, got %d", want, got)
	}
	for i, r := range runs {
		if got, want := r, i+1; got != want {
			t.Errorf("Expected run index %d at position %d, got %d", want, i, got)
		}
	}
	if got, want := ex.calls, 10; got != want {
		t.Errorf("Expected %d executions, got %d", want, got)
	}
	if got, want := ex.lastSQL, "SELECT 1;"; got != want {
		t.Errorf("Expected statement %q, got %q", want, got)
	}
}

func TestRestartAfterExhaustion(t *testing.T) {
	b := newConfigured(t, &fakeExec{}, 2)
	ctx := context.Background()

	for b.Next(ctx) {
	}
	if err := b.Err(); err != nil {
		t.Fatalf("Didn't expect an error after completion: %v", err)
	}

	if b.Next(ctx) {
		t.Error("Expected Next to return false after exhaustion")
	}
	var stateErr types.StateError
	if !errors.As(b.Err(), &stateErr) {
		t.Errorf("Expected StateError on restart, got %v", b.Err())
	}
}

func TestFailFast(t *testing.T) {
	ex := &fakeExec{failOn: 500}
	b := newConfigured(t, ex, 1000)

	count := 0
	for b.Next(context.Background()) {
		count++
	}
	if got, want := count, 499; got != want {
		t.Errorf("Expected %d successful runs, got %d", want, got)
	}

	var execErr types.ExecError
	if !errors.As(b.Err(), &execErr) {
		t.Fatalf("Expected ExecError, got %v", b.Err())
	}
	if got, want := execErr.Run, 500; got != want {
		t.Errorf("Expected failure on run %d, got %d", want, got)
	}

	// The summary reflects only the completed runs.
	if got, want := b.Summary().Runs, 499; got != want {
		t.Errorf("Expected summary over %d runs, got %d", want, got)
	}
}

func TestSetSQLFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query.sql")
	if err := os.WriteFile(path, []byte("SELECT count(*) FROM accounts;\n"), 0o644); err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}

	b := New(&fakeExec{})
	if err := b.SetSQL(path); err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	if got, want := b.SQL(), "SELECT count(*) FROM accounts;"; got != want {
		t.Errorf("Expected statement %q, got %q", want, got)
	}
}

func TestSetSQLRejectsEmpty(t *testing.T) {
	var confErr types.ConfigError

	b := New(&fakeExec{})
	if err := b.SetSQL("   "); !errors.As(err, &confErr) {
		t.Errorf("Expected ConfigError for blank statement, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "empty.sql")
	if err := os.WriteFile(path, []byte("\n\n"), 0o644); err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	if err := b.SetSQL(path); !errors.As(err, &confErr) {
		t.Errorf("Expected ConfigError for empty statement file, got %v", err)
	}
}

func TestReconfigureBeforeStartReplaces(t *testing.T) {
	b := New(&fakeExec{})
	if err := b.SetSQL("SELECT 1;"); err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	if err := b.SetSQL("SELECT 2;"); err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	if got, want := b.SQL(), "SELECT 2;"; got != want {
		t.Errorf("Expected statement %q, got %q", want, got)
	}
}

func TestConfigureAfterStart(t *testing.T) {
	b := newConfigured(t, &fakeExec{}, 5)
	if !b.Next(context.Background()) {
		t.Fatalf("Didn't expect iteration to stop: %v", b.Err())
	}

	var stateErr types.StateError
	if err := b.SetSQL("SELECT 2;"); !errors.As(err, &stateErr) {
		t.Errorf("Expected StateError from SetSQL, got %v", err)
	}
	if err := b.SetRuns(10); !errors.As(err, &stateErr) {
		t.Errorf("Expected StateError from SetRuns, got %v", err)
	}
	if err := b.SetSink(&collectSink{}); !errors.As(err, &stateErr) {
		t.Errorf("Expected StateError from SetSink, got %v", err)
	}
}

func TestSetRunsRejectsNonPositive(t *testing.T) {
	var confErr types.ConfigError
	b := New(&fakeExec{})
	if err := b.SetRuns(0); !errors.As(err, &confErr) {
		t.Errorf("Expected ConfigError, got %v", err)
	}
}

func TestMissingConnection(t *testing.T) {
	b := New(nil)
	if err := b.SetSQL("SELECT 1;"); err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	if b.Next(context.Background()) {
		t.Error("Expected Next to return false without a connection")
	}
	var confErr types.ConfigError
	if !errors.As(b.Err(), &confErr) {
		t.Errorf("Expected ConfigError, got %v", b.Err())
	}
}

func TestIndependentInstances(t *testing.T) {
	first, err := newConfigured(t, &fakeExec{}, 5).Run(context.Background())
	if err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	second, err := newConfigured(t, &fakeExec{}, 5).Run(context.Background())
	if err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	if got, want := first.Runs, 5; got != want {
		t.Errorf("Expected first summary over %d runs, got %d", want, got)
	}
	if got, want := second.Runs, 5; got != want {
		t.Errorf("Expected second summary over %d runs, got %d", want, got)
	}
}

func TestCancellationBetweenRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := newConfigured(t, &fakeExec{}, 1000)

	count := 0
	for b.Next(ctx) {
		count++
		if count == 3 {
			cancel()
		}
	}
	if got, want := count, 3; got != want {
		t.Errorf("Expected %d completed runs, got %d", want, got)
	}
	if !errors.Is(b.Err(), context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", b.Err())
	}
	if got, want := b.Summary().Runs, 3; got != want {
		t.Errorf("Expected summary over %d runs, got %d", want, got)
	}
}

func TestSinkReceivesEveryRun(t *testing.T) {
	sink := &collectSink{}
	b := newConfigured(t, &fakeExec{}, 7)
	if err := b.SetSink(sink); err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}

	if _, err := b.Run(context.Background()); err != nil {
		t.Fatalf("Didn't expect an error: %v", err)
	}
	if got, want := len(sink.results), 7; got != want {
		t.Fatalf("Expected %d sink deliveries, got %d", want, got)
	}
	for i, r := range sink.results {
		if got, want := r.Run, i+1; got != want {
			t.Errorf("Expected run index %d at position %d, got %d", want, i, got)
		}
	}
}

func TestSummaryMidRun(t *testing.T) {
	b := newConfigured(t, &fakeExec{}, 10)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if !b.Next(ctx) {
			t.Fatalf("Didn't expect iteration to stop: %v", b.Err())
		}
	}
	if got, want := b.Summary().Runs, 4; got != want {
		t.Errorf("Expected partial summary over %d runs, got %d", want, got)
	}
}
