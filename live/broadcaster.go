package live

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pgbenchmark/types"
)

const (
	// writeWait is the deadline for a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a subscriber may stay silent before its
	// connection is considered dead. Pings go out at pingPeriod.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// subscriberQueue bounds each subscriber's outbound queue. A
	// subscriber that falls this far behind is dropped rather than
	// allowed to stall delivery.
	subscriberQueue = 32
)

// SubscriberState tracks a subscriber through its lifecycle.
type SubscriberState int32

const (
	StateConnecting SubscriberState = iota
	StateOpen
	StateClosed
)

func (s SubscriberState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Subscriber is one connected dashboard client. Its lifetime runs from
// connect to disconnect or error, independent of the benchmark's.
type Subscriber struct {
	id    string
	conn  *websocket.Conn
	send  chan []byte
	state atomic.Int32
}

// ID returns the subscriber's identifier, used in logs.
func (s *Subscriber) ID() string {
	return s.id
}

// State returns the subscriber's current lifecycle state.
func (s *Subscriber) State() SubscriberState {
	return SubscriberState(s.state.Load())
}

// Broadcaster owns the registry of open subscribers and fans each
// published result out to all of them. Delivery to each subscriber is
// independent: one slow or dead client never blocks the producer or the
// other clients.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	closed bool
	log    zerolog.Logger

	delivered atomic.Uint64
	failures  atomic.Uint64
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		subs: make(map[*Subscriber]struct{}),
		log:  logger,
	}
}

// Join registers conn as a new subscriber and starts its read and write
// pumps. If the broadcaster has shut down the connection is closed
// immediately.
func (bc *Broadcaster) Join(conn *websocket.Conn) *Subscriber {
	sub := &Subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, subscriberQueue),
	}

	bc.mu.Lock()
	if bc.closed {
		bc.mu.Unlock()
		sub.state.Store(int32(StateClosed))
		conn.Close()
		return sub
	}
	bc.subs[sub] = struct{}{}
	sub.state.Store(int32(StateOpen))
	bc.mu.Unlock()

	bc.log.Debug().Str("subscriber", sub.id).Msg("subscriber joined")

	go sub.writePump(bc)
	go sub.readPump(bc)
	return sub
}

// Publish serializes r once and offers it to every open subscriber. A
// subscriber whose queue is full is dropped; the others are unaffected
// and the caller never waits.
func (bc *Broadcaster) Publish(r types.RunResult) {
	payload, err := json.Marshal(r)
	if err != nil {
		bc.log.Error().Err(err).Msg("marshal run result")
		return
	}

	bc.mu.Lock()
	var stalled []*Subscriber
	for sub := range bc.subs {
		select {
		case sub.send <- payload:
			bc.delivered.Add(1)
		default:
			stalled = append(stalled, sub)
		}
	}
	for _, sub := range stalled {
		if bc.removeLocked(sub, "send queue full") {
			bc.failures.Add(1)
		}
	}
	bc.mu.Unlock()
}

// Len reports how many subscribers are currently open.
func (bc *Broadcaster) Len() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.subs)
}

// Delivered reports how many messages were queued for delivery.
func (bc *Broadcaster) Delivered() uint64 {
	return bc.delivered.Load()
}

// Failures reports how many subscribers were dropped for delivery
// failures.
func (bc *Broadcaster) Failures() uint64 {
	return bc.failures.Load()
}

// Close drops every subscriber and rejects future joins.
func (bc *Broadcaster) Close() {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	bc.closed = true
	for sub := range bc.subs {
		bc.removeLocked(sub, "broadcaster shutdown")
	}
}

// drop removes sub after a transport error on its connection.
func (bc *Broadcaster) drop(sub *Subscriber, err error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.removeLocked(sub, err.Error()) {
		bc.failures.Add(1)
	}
}

// removeLocked transitions sub to closed and closes its queue,
// reporting whether sub was still registered. The caller holds bc.mu
// and counts the removal as a failure only when it came from a
// delivery or transport error, not from a clean shutdown.
func (bc *Broadcaster) removeLocked(sub *Subscriber, reason string) bool {
	if _, ok := bc.subs[sub]; !ok {
		return false
	}
	delete(bc.subs, sub)
	sub.state.Store(int32(StateClosed))
	close(sub.send)
	bc.log.Debug().Str("subscriber", sub.id).Str("reason", reason).Msg("subscriber closed")
	return true
}

// writePump drains the subscriber's queue onto the wire and keeps the
// connection alive with pings. It exits when the broadcaster closes the
// queue.
func (s *Subscriber) writePump(bc *Broadcaster) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				s.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				bc.drop(s, err)
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				bc.drop(s, err)
			}
		}
	}
}

// readPump discards inbound frames; the protocol is send-only and reads
// exist solely to detect disconnects and answer pings.
func (s *Subscriber) readPump(bc *Broadcaster) {
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			bc.drop(s, err)
			return
		}
	}
}
