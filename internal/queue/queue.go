// Package queue provides the bounded FIFO of logical events between the
// event matcher and the state machine engine.
package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/roach88/harpi/internal/hapcan"
)

// DefaultCapacity is the event buffer size of the gateway.
const DefaultCapacity = 60

var (
	// ErrFull is returned by Push when the queue holds Capacity events.
	ErrFull = errors.New("event queue full")
	// ErrClosed is returned by Push after Close.
	ErrClosed = errors.New("event queue closed")
)

// Event is one matched event set, with the frame that matched it.
type Event struct {
	EventSetID uint16
	Frame      hapcan.Frame
	Timestamp  time.Time
}

// Queue is a thread-safe bounded FIFO queue of events.
//
// Pushes never block: when the queue is full the event is rejected and
// the caller drops it. The queue uses a channel for signaling so the
// consumer can wait on it alongside its context.
type Queue struct {
	mu       sync.Mutex
	events   []Event
	capacity int
	closed   bool
	signal   chan struct{} // Signals event availability (buffered, size 1)
}

// New creates an empty queue holding at most capacity events. A
// capacity below 1 uses DefaultCapacity.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Queue{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// Push adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
func (q *Queue) Push(e Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if len(q.events) >= q.capacity {
		return ErrFull
	}

	q.events = append(q.events, e)

	// Signal availability (non-blocking - buffer of 1 coalesces multiple signals)
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return nil
}

// TryPop removes and returns the front event without blocking.
// Returns (Event{}, false) if the queue is empty.
func (q *Queue) TryPop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]
	// Shift down rather than reslice so the backing array never grows
	// past capacity.
	copy(q.events, q.events[1:])
	q.events = q.events[:len(q.events)-1]

	return e, true
}

// Wait returns a channel that signals when events may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryPop
//	}
func (q *Queue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Capacity returns the maximum queue length.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Close signals that no more events will be pushed. Events already
// queued can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal) // Wakes all waiters
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
