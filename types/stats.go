package types

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Stats is the aggregate view over the runs observed so far. All time
// fields are zero until at least one run has been observed; once Runs is
// at least 1, MinTime <= AvgTime <= MaxTime holds. MedianTime and
// P95Time are estimates drawn from a bounded sample of runs; StdDev is
// the exact sample standard deviation.
type Stats struct {
	Runs       int
	MinTime    time.Duration
	MaxTime    time.Duration
	AvgTime    time.Duration
	MedianTime time.Duration
	P95Time    time.Duration
	StdDev     time.Duration
}

// MarshalJSON renders the summary with every time value as decimal
// seconds, matching the per-run wire format.
func (s Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Runs       int    `json:"runs"`
		MinTime    string `json:"min_time"`
		MaxTime    string `json:"max_time"`
		AvgTime    string `json:"avg_time"`
		MedianTime string `json:"median_time"`
		P95Time    string `json:"p95_time"`
		StdDev     string `json:"std_dev"`
	}{
		Runs:       s.Runs,
		MinTime:    FormatSeconds(s.MinTime),
		MaxTime:    FormatSeconds(s.MaxTime),
		AvgTime:    FormatSeconds(s.AvgTime),
		MedianTime: FormatSeconds(s.MedianTime),
		P95Time:    FormatSeconds(s.P95Time),
		StdDev:     FormatSeconds(s.StdDev),
	})
}

// DisableColor disables ANSI colors in the Stats default string.
func DisableColor() {
	color.NoColor = true
}

// String returns a human-readable rendering of s.
func (s Stats) String() string {
	out := color.CyanString("== Benchmark summary\n")
	out += fmt.Sprintf("    Runs: %d\n", s.Runs)
	out += fmt.Sprintf("     Min: %ss\n", FormatSeconds(s.MinTime))
	out += fmt.Sprintf("     Max: %ss\n", FormatSeconds(s.MaxTime))
	out += fmt.Sprintf("     Avg: %ss\n", FormatSeconds(s.AvgTime))
	out += fmt.Sprintf("  Median: %ss\n", FormatSeconds(s.MedianTime))
	out += fmt.Sprintf("     P95: %ss\n", FormatSeconds(s.P95Time))
	out += fmt.Sprintf("  StdDev: %ss\n", FormatSeconds(s.StdDev))
	return out
}

// reservoirSize bounds the sample kept for the median and p95
// estimates, so Tracker memory stays constant however many runs a
// benchmark executes. At this size the estimates are exact for any
// benchmark of up to reservoirSize runs.
const reservoirSize = 512

// Tracker maintains Stats incrementally: count, min, max, a Welford
// online mean and variance, and a fixed-size uniform sample of
// durations for the order statistics.
// It is safe for concurrent use: the live server reads partial summaries
// while the benchmark loop records runs, and parallel workers share one
// Tracker.
//
// The zero value is ready to use.
type Tracker struct {
	mu     sync.Mutex
	runs   int
	min    time.Duration
	max    time.Duration
	mean   float64 // seconds
	m2     float64 // sum of squared deviations, seconds^2
	sample []time.Duration
}

// Observe folds one run into the running statistics.
func (t *Tracker) Observe(r RunResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.runs++
	if t.runs == 1 || r.Duration < t.min {
		t.min = r.Duration
	}
	if r.Duration > t.max {
		t.max = r.Duration
	}

	seconds := r.Duration.Seconds()
	delta := seconds - t.mean
	t.mean += delta / float64(t.runs)
	t.m2 += delta * (seconds - t.mean)

	// Vitter's algorithm R keeps a uniform sample of all runs so far.
	if len(t.sample) < reservoirSize {
		t.sample = append(t.sample, r.Duration)
	} else if j := rand.Intn(t.runs); j < reservoirSize {
		t.sample[j] = r.Duration
	}
}

// Summary returns a snapshot of the statistics so far. It may be called
// at any time, including mid-run; with zero observed runs it returns a
// zero-valued Stats.
func (t *Tracker) Summary() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runs == 0 {
		return Stats{}
	}

	sorted := make([]time.Duration, len(t.sample))
	copy(sorted, t.sample)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var stddev float64
	if t.runs > 1 {
		stddev = math.Sqrt(t.m2 / float64(t.runs-1))
	}

	return Stats{
		Runs:       t.runs,
		MinTime:    t.min,
		MaxTime:    t.max,
		AvgTime:    time.Duration(math.Round(t.mean * float64(time.Second))),
		MedianTime: median(sorted),
		P95Time:    percentile(sorted, 95),
		StdDev:     time.Duration(math.Round(stddev * float64(time.Second))),
	}
}

func median(sorted []time.Duration) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	half := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[half-1] + sorted[half]) / 2
	}
	return sorted[half]
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
