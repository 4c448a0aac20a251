// Package matcher classifies incoming frames against the event sets of
// the active generation and queues a logical event for every match.
package matcher

import (
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/harpi/internal/hapcan"
	"github.com/roach88/harpi/internal/ir"
	"github.com/roach88/harpi/internal/metrics"
	"github.com/roach88/harpi/internal/queue"
	"github.com/roach88/harpi/internal/rules"
)

// Match reports whether frame satisfies every position of set. The
// comparison stops at the first failing byte; an operator outside the
// five known tokens never matches.
func Match(set ir.EventSet, frame hapcan.Frame) bool {
	for i, op := range set.Conditions {
		b, v := frame[i], set.Values[i]
		var ok bool
		switch op {
		case ir.AnyByte:
			ok = true
		case ir.Equal:
			ok = b == v
		case ir.NotEqual:
			ok = b != v
		case ir.LessOrEqual:
			ok = b <= v
		case ir.GreaterOrEqual:
			ok = b >= v
		}
		if !ok {
			return false
		}
	}
	return true
}

// Matcher evaluates frames against the store's event sets.
type Matcher struct {
	sets    *rules.Collection[ir.EventSet]
	events  *queue.Queue
	metrics *metrics.Metrics
}

// New creates a matcher reading event sets from store and pushing events
// onto events.
func New(store *rules.Store, events *queue.Queue, m *metrics.Metrics) *Matcher {
	return &Matcher{sets: &store.EventSets, events: events, metrics: m}
}

// OnFrame pushes one event per matching event set and returns the number
// of matches. Events that do not fit the queue are logged and dropped.
//
// The event set collection is read one entry at a time, so a reload
// during the scan is never blocked by it; the scan continues by index
// against whichever generation is current.
func (m *Matcher) OnFrame(frame hapcan.Frame, ts time.Time) int {
	matched := 0
	for i := 0; ; i++ {
		set, ok := m.sets.At(i)
		if !ok {
			break
		}
		if !Match(set, frame) {
			continue
		}

		matched++
		m.metrics.EventsMatched.Inc()

		err := m.events.Push(queue.Event{EventSetID: set.ID, Frame: frame, Timestamp: ts})
		if err != nil {
			reason := metrics.DropQueueFull
			if errors.Is(err, queue.ErrClosed) {
				reason = metrics.DropQueueClosed
			}
			m.metrics.EventsDropped.WithLabelValues(reason).Inc()
			slog.Warn("event dropped",
				"event_set", set.ID,
				"frame", frame.String(),
				"reason", reason,
			)
			continue
		}
		slog.Debug("event matched", "event_set", set.ID, "frame", frame.String())
	}

	m.metrics.QueueDepth.Set(float64(m.events.Len()))
	return matched
}
