// Package dispatch sends the frames bound to an action set.
package dispatch

import (
	"log/slog"

	"github.com/roach88/harpi/internal/hapcan"
	"github.com/roach88/harpi/internal/ir"
	"github.com/roach88/harpi/internal/metrics"
	"github.com/roach88/harpi/internal/rules"
)

// Failure is one frame the transport rejected.
type Failure struct {
	Frame hapcan.Frame
	Err   error
}

// Report describes one dispatch.
type Report struct {
	ActionSetID uint16
	Sent        int
	Failures    []Failure
}

// Matched returns the number of frames the action set resolved to.
func (r Report) Matched() int {
	return r.Sent + len(r.Failures)
}

// OK reports whether every frame was sent.
func (r Report) OK() bool {
	return len(r.Failures) == 0
}

// Dispatcher resolves action sets against the store and sends their
// frames.
type Dispatcher struct {
	actions *rules.Collection[ir.ActionSet]
	bus     hapcan.Sender
	metrics *metrics.Metrics
}

// New creates a dispatcher.
func New(store *rules.Store, bus hapcan.Sender, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{actions: &store.ActionSets, bus: bus, metrics: m}
}

// SendActionsFromID sends every frame of action set id, in declaration
// order. The frames are collected under the action-set read lock and
// sent after it is released. A failed frame does not stop the rest.
func (d *Dispatcher) SendActionsFromID(id uint16) Report {
	matched := d.actions.Select(func(a ir.ActionSet) bool { return a.ID == id })

	report := Report{ActionSetID: id}
	for _, a := range matched {
		err := d.bus.Send(a.Frame)
		d.metrics.RecordSend(metrics.FrameAction, err)
		if err != nil {
			slog.Error("send action frame failed",
				"action_set", id,
				"frame", a.Frame.String(),
				"error", err,
			)
			report.Failures = append(report.Failures, Failure{Frame: a.Frame, Err: err})
			continue
		}
		report.Sent++
	}

	if len(matched) == 0 {
		slog.Debug("action set has no frames", "action_set", id)
	}
	return report
}
