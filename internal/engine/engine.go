package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/harpi/internal/dispatch"
	"github.com/roach88/harpi/internal/ir"
	"github.com/roach88/harpi/internal/journal"
	"github.com/roach88/harpi/internal/metrics"
	"github.com/roach88/harpi/internal/queue"
	"github.com/roach88/harpi/internal/rules"
)

// IdleState is the state every machine starts in after a reload.
const IdleState uint16 = 0

// Dispatcher sends the frames of an action set.
type Dispatcher interface {
	SendActionsFromID(id uint16) dispatch.Report
}

// LoadSwitch switches off the loads of a state machine.
type LoadSwitch interface {
	SetLoadsOff(id uint16) error
}

// Recorder journals transitions.
type Recorder interface {
	WriteTransition(ctx context.Context, t journal.Transition) (int64, error)
}

// Outcome is the result of one table lookup.
type Outcome struct {
	// ActionSets are the bound action sets in declaration order.
	ActionSets []uint16
	// NewState is valid when Transition is true.
	NewState   uint16
	Transition bool
}

// Step is what the engine did for one machine on one event.
type Step struct {
	StateMachineID uint16
	EventSetID     uint16
	From           uint16
	To             uint16
	Outcome        Outcome
}

// Engine is the state machine event loop.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine
//   - ResetStates(), State(), Lookup(): safe from any goroutine
type Engine struct {
	store      *rules.Store
	events     *queue.Queue
	dispatcher Dispatcher
	loads      LoadSwitch
	recorder   Recorder
	metrics    *metrics.Metrics

	mu     sync.Mutex
	states map[uint16]uint16
	epoch  uint64 // bumped by ResetStates
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder journals every step that matched a row.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// New creates an engine consuming events.
func New(
	store *rules.Store,
	events *queue.Queue,
	dispatcher Dispatcher,
	loads LoadSwitch,
	m *metrics.Metrics,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:      store,
		events:     events,
		dispatcher: dispatcher,
		loads:      loads,
		metrics:    m,
		states:     map[uint16]uint16{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Lookup finds the rows for (sm, state, event). ok is false when no
// StateAction and no StateTransition row matches. When several
// transition rows match, the first declared wins.
func (e *Engine) Lookup(sm, state, event uint16) (Outcome, bool) {
	var out Outcome

	actions := e.store.StateActions.Select(func(r ir.StateAction) bool {
		return r.StateMachineID == sm && r.CurrentState == state && r.EventSetID == event
	})
	for _, a := range actions {
		out.ActionSets = append(out.ActionSets, a.ActionSetID)
	}

	transitions := e.store.StateTransitions.Select(func(r ir.StateTransition) bool {
		return r.StateMachineID == sm && r.CurrentState == state && r.EventSetID == event
	})
	if len(transitions) > 0 {
		out.NewState = transitions[0].NewState
		out.Transition = true
		if len(transitions) > 1 {
			slog.Warn("ambiguous state transition",
				"state_machine", sm,
				"state", state,
				"event_set", event,
				"rows", len(transitions),
			)
		}
	}

	return out, len(out.ActionSets) > 0 || out.Transition
}

// ResetStates puts every machine in the idle state. A step that read its
// state before the reset does not write its transition afterwards.
func (e *Engine) ResetStates() {
	e.mu.Lock()
	e.states = map[uint16]uint16{}
	e.epoch++
	e.mu.Unlock()
}

// State returns the current state of sm.
func (e *Engine) State(sm uint16) uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[sm]
}

func (e *Engine) current(sm uint16) (state uint16, epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[sm], e.epoch
}

// advance sets the state of sm unless the states were reset since epoch
// was read.
func (e *Engine) advance(sm uint16, epoch uint64, state uint16) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return false
	}
	e.states[sm] = state
	return true
}

// Run drains the event queue until ctx is cancelled or the queue is
// closed. Per-event failures are logged and processing continues.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting")

	for {
		event, ok := e.events.TryPop()
		if ok {
			e.metrics.QueueDepth.Set(float64(e.events.Len()))
			if _, err := e.Process(ctx, event); err != nil {
				slog.Error("event processing failed",
					"error", err,
					"event_set", event.EventSetID,
					"frame", event.Frame.String(),
				)
			}
			continue
		}

		// No event ready - wait for signal or context cancellation
		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			return ctx.Err()

		case <-e.events.Wait():
			// The signal channel closes when the queue is closed,
			// which will cause this case to fire immediately
			if e.events.Closed() && e.events.Len() == 0 {
				slog.Info("engine stopping: queue closed")
				return ErrStopped
			}
		}
	}
}

// Drain processes the events queued right now and returns how many it
// handled. It does not wait for more.
func (e *Engine) Drain(ctx context.Context) (int, error) {
	var (
		n    int
		errs []error
	)
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		event, ok := e.events.TryPop()
		if !ok {
			e.metrics.QueueDepth.Set(0)
			return n, errors.Join(errs...)
		}
		n++
		if _, err := e.Process(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
}

// Process evaluates every machine bound to the event's set and returns
// the steps that matched a row.
func (e *Engine) Process(ctx context.Context, ev queue.Event) ([]Step, error) {
	var (
		steps []Step
		errs  []error
	)
	for _, sm := range e.boundMachines(ev.EventSetID) {
		step, ok := e.step(sm, ev.EventSetID)
		if !ok {
			continue
		}
		steps = append(steps, step)
		if err := e.record(ctx, step); err != nil {
			errs = append(errs, err)
		}
	}
	return steps, errors.Join(errs...)
}

// boundMachines returns the machines bound to event, once each, in
// declaration order.
func (e *Engine) boundMachines(event uint16) []uint16 {
	bindings := e.store.EventBindings.Select(func(b ir.EventBinding) bool {
		return b.EventSetID == event
	})

	seen := make(map[uint16]bool, len(bindings))
	ids := make([]uint16, 0, len(bindings))
	for _, b := range bindings {
		if seen[b.StateMachineID] {
			continue
		}
		seen[b.StateMachineID] = true
		ids = append(ids, b.StateMachineID)
	}
	return ids
}

func (e *Engine) step(sm, event uint16) (Step, bool) {
	from, epoch := e.current(sm)
	out, ok := e.Lookup(sm, from, event)
	if !ok {
		slog.Debug("no rule for event", "state_machine", sm, "state", from, "event_set", event)
		return Step{}, false
	}

	for _, id := range out.ActionSets {
		report := e.dispatcher.SendActionsFromID(id)
		if !report.OK() {
			slog.Warn("action set partially sent",
				"state_machine", sm,
				"action_set", id,
				"sent", report.Sent,
				"failed", len(report.Failures),
			)
		}
	}

	to := from
	if out.Transition && !e.advance(sm, epoch, out.NewState) {
		slog.Warn("transition discarded after reload",
			"state_machine", sm,
			"event_set", event,
			"from", from,
			"to", out.NewState,
		)
		out.Transition = false
	}
	if out.Transition {
		to = out.NewState
		e.metrics.Transitions.Inc()

		if to == IdleState && from != IdleState {
			if err := e.loads.SetLoadsOff(sm); err != nil {
				slog.Error("switching loads off failed", "state_machine", sm, "error", err)
			}
		}
	}

	slog.Info("state machine step",
		"state_machine", sm,
		"event_set", event,
		"from", from,
		"to", to,
		"action_sets", len(out.ActionSets),
	)

	return Step{StateMachineID: sm, EventSetID: event, From: from, To: to, Outcome: out}, true
}

func (e *Engine) record(ctx context.Context, s Step) error {
	if e.recorder == nil {
		return nil
	}
	_, err := e.recorder.WriteTransition(ctx, journal.Transition{
		Generation:     e.store.Info().ID,
		StateMachineID: s.StateMachineID,
		FromState:      s.From,
		ToState:        s.To,
		EventSetID:     s.EventSetID,
		ActionSets:     s.Outcome.ActionSets,
	})
	return err
}
