package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultBusCapacity bounds each subscriber's private queue.
const DefaultBusCapacity = 1024

// ErrBusClosed is returned by Receive once the bus has shut down and the
// subscriber's queue is exhausted.
var ErrBusClosed = errors.New("bus closed")

// LagError reports that a subscriber fell behind and envelopes were dropped
// from its queue. It is surfaced on the next Receive instead of silently
// skipping the gap; callers decide the policy (sessions disconnect).
type LagError struct {
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("subscriber lagged, missed %d envelopes", e.Missed)
}

// Bus is the process-wide broadcast fan-out. Every publisher shares one bus;
// every session holds its own Subscriber. Publish never blocks: each
// subscriber has an independent bounded queue, and a slow subscriber loses
// its own oldest envelopes rather than slowing publishers or its peers.
type Bus struct {
	mu       sync.Mutex
	capacity int
	subs     map[*Subscriber]struct{}
	closed   bool
}

// NewBus creates a bus whose subscribers each buffer up to capacity
// envelopes. A capacity <= 0 selects DefaultBusCapacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultBusCapacity
	}
	return &Bus{
		capacity: capacity,
		subs:     make(map[*Subscriber]struct{}),
	}
}

// Publish fans an envelope out to all current subscribers. Publishing with
// zero subscribers succeeds; it is not a failure to talk to an empty room.
func (b *Bus) Publish(env Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		sub.push(env)
	}
}

// Subscribe registers a new subscriber. The caller must call
// Subscriber.Close when done with it.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		bus:      b,
		capacity: b.capacity,
		wake:     make(chan struct{}, 1),
		closed:   b.closed,
	}
	if !b.closed {
		b.subs[sub] = struct{}{}
	}
	return sub
}

// Close shuts the bus down. Every subscriber observes ErrBusClosed on its
// next Receive after draining whatever it already has queued.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		sub.markClosed()
	}
	b.subs = make(map[*Subscriber]struct{})
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Subscriber is one receiver handle on the bus. It has exactly one reading
// goroutine by construction; the mutex exists because publishers push into
// the queue from their own goroutines.
type Subscriber struct {
	bus      *Bus
	capacity int

	mu     sync.Mutex
	queue  []Envelope
	missed uint64
	closed bool

	wake chan struct{}
}

// Receive blocks until an envelope arrives, the subscriber is found to have
// lagged (*LagError), the bus closes (ErrBusClosed), or ctx is done. A lag
// is reported before any of the envelopes retained after the drop.
func (s *Subscriber) Receive(ctx context.Context) (Envelope, error) {
	for {
		s.mu.Lock()
		if s.missed > 0 {
			n := s.missed
			s.missed = 0
			s.mu.Unlock()
			return Envelope{}, &LagError{Missed: n}
		}
		if len(s.queue) > 0 {
			env := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return env, nil
		}
		if s.closed {
			s.mu.Unlock()
			return Envelope{}, ErrBusClosed
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		}
	}
}

// Close detaches the subscriber from the bus and releases its queue.
func (s *Subscriber) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()

	s.markClosed()
}

func (s *Subscriber) push(env Envelope) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, env)
	if len(s.queue) > s.capacity {
		// Overflow is charged to this subscriber alone: shed its oldest
		// envelope and remember the gap for the next Receive.
		s.queue = s.queue[1:]
		s.missed++
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Subscriber) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
