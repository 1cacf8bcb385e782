// Package stream fans workflow progress events out to subscribers.
//
// Delivery is best effort: each subscriber owns a bounded buffer and
// the oldest buffered event is dropped when it fills, so a slow
// consumer never blocks the executor and always converges on recent
// state. The checkpoint log, not the stream, is the source of truth.
package stream

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// EventType classifies a stream event.
type EventType string

const (
	// EventStep is emitted after each node's checkpoint is written.
	EventStep EventType = "step"
	// EventInterrupt is emitted when a thread suspends for human review.
	EventInterrupt EventType = "interrupt"
	// EventCompleted is emitted when a thread reaches completed.
	EventCompleted EventType = "completed"
	// EventError is emitted when a thread halts with an error.
	EventError EventType = "error"
)

// Event is one workflow progress notification.
type Event struct {
	Type      EventType       `json:"type"`
	ThreadID  string          `json:"threadId"`
	Seq       int64           `json:"seq"`
	Node      string          `json:"node,omitempty"`
	Status    string          `json:"status,omitempty"`
	State     json.RawMessage `json:"state,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// DefaultBufferSize is the per-subscriber event buffer size.
const DefaultBufferSize = 64

// Emitter is an in-process fanout of Events keyed by thread.
type Emitter struct {
	mu      sync.RWMutex
	subs    map[string]map[uint64]*Subscription
	bufSize int
	nextID  atomic.Uint64
	dropped atomic.Int64
	closed  bool
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithBufferSize overrides the per-subscriber buffer size.
func WithBufferSize(n int) Option {
	return func(e *Emitter) {
		if n > 0 {
			e.bufSize = n
		}
	}
}

// NewEmitter creates an Emitter.
func NewEmitter(opts ...Option) *Emitter {
	e := &Emitter{
		subs:    make(map[string]map[uint64]*Subscription),
		bufSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscription receives a single thread's events on C. The channel is
// closed by Unsubscribe or Emitter.Close.
type Subscription struct {
	C <-chan Event

	ch       chan Event
	emitter  *Emitter
	threadID string
	id       uint64
}

// Subscribe registers a subscriber for the given thread's events.
func (e *Emitter) Subscribe(threadID string) *Subscription {
	ch := make(chan Event, e.bufSize)
	sub := &Subscription{
		C:        ch,
		ch:       ch,
		emitter:  e,
		threadID: threadID,
		id:       e.nextID.Add(1),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(ch)
		return sub
	}
	if e.subs[threadID] == nil {
		e.subs[threadID] = make(map[uint64]*Subscription)
	}
	e.subs[threadID][sub.id] = sub
	return sub
}

// Unsubscribe removes the subscription and closes its channel. Safe to
// call more than once.
func (s *Subscription) Unsubscribe() {
	e := s.emitter
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.subs[s.threadID]
	if _, ok := subs[s.id]; !ok {
		return
	}
	delete(subs, s.id)
	if len(subs) == 0 {
		delete(e.subs, s.threadID)
	}
	close(s.ch)
}

// Publish delivers ev to the thread's subscribers without blocking.
// When a subscriber's buffer is full the oldest event is discarded to
// make room; if another writer wins the freed slot the new event is
// discarded instead. Every discard increments the drop counter.
func (e *Emitter) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	for _, sub := range e.subs[ev.ThreadID] {
		select {
		case sub.ch <- ev:
			continue
		default:
		}

		select {
		case <-sub.ch:
			e.dropped.Add(1)
		default:
		}
		select {
		case sub.ch <- ev:
		default:
			e.dropped.Add(1)
		}
	}
}

// SubscriberCount reports active subscriptions for a thread.
func (e *Emitter) SubscriberCount(threadID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs[threadID])
}

// Dropped reports the total number of discarded events.
func (e *Emitter) Dropped() int64 {
	return e.dropped.Load()
}

// Close closes every subscription channel. Later Publish calls are
// no-ops and later Subscribe calls return closed subscriptions.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true

	for _, subs := range e.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	e.subs = make(map[string]map[uint64]*Subscription)
}
