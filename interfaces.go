package pgbenchmark

import (
	"pgbenchmark/types"
)

// Sink receives each RunResult as it is produced. Offer must return
// quickly and must never block the benchmark loop: blocking here would
// pollute the latency measurements of subsequent runs.
type Sink interface {
	Offer(types.RunResult)
}

// Notifier delivers a finished benchmark's summary somewhere useful.
type Notifier interface {
	Type() string
	Notify(types.Stats) error
}
