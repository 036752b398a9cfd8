// Package live streams benchmark measurements to dashboard subscribers.
// The benchmark loop and the telemetry server run on independent
// goroutines; the Bridge is the only object shared between them.
package live

import (
	"sync"
	"sync/atomic"

	"pgbenchmark/types"
)

// DefaultBridgeCapacity bounds how many results may be pending delivery
// before the Bridge starts dropping.
const DefaultBridgeCapacity = 256

// Bridge is the capacity-bounded conduit between the benchmark loop and
// the telemetry server. The producer side never blocks: when the buffer
// is full the oldest pending result is dropped, since the dashboard
// wants fresh samples more than complete ones.
type Bridge struct {
	mu      sync.Mutex
	ch      chan types.RunResult
	closed  bool
	dropped atomic.Uint64
}

// NewBridge returns a Bridge buffering up to capacity results.
// Non-positive capacities fall back to DefaultBridgeCapacity.
func NewBridge(capacity int) *Bridge {
	if capacity <= 0 {
		capacity = DefaultBridgeCapacity
	}
	return &Bridge{ch: make(chan types.RunResult, capacity)}
}

// Offer hands r to the telemetry server without waiting for delivery
// confirmation. Offers to a closed Bridge are discarded.
func (b *Bridge) Offer(r types.RunResult) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for {
		select {
		case b.ch <- r:
			return
		default:
		}
		select {
		case <-b.ch:
			b.dropped.Add(1)
		default:
		}
	}
}

// Results is the consumer side of the conduit. It is closed by Close.
func (b *Bridge) Results() <-chan types.RunResult {
	return b.ch
}

// Dropped reports how many pending results were discarded because the
// consumer lagged behind.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

// Close ends the conduit. Safe to call more than once.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}
