package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/harpi/internal/dispatch"
	"github.com/roach88/harpi/internal/engine"
	"github.com/roach88/harpi/internal/hapcan"
	"github.com/roach88/harpi/internal/journal"
	"github.com/roach88/harpi/internal/loads"
	"github.com/roach88/harpi/internal/matcher"
	"github.com/roach88/harpi/internal/metrics"
	"github.com/roach88/harpi/internal/queue"
	"github.com/roach88/harpi/internal/rules"
	"github.com/roach88/harpi/internal/timer"
)

// Journal records reloads and transitions.
type Journal interface {
	WriteReload(ctx context.Context, r journal.Reload) (int64, error)
	WriteTransition(ctx context.Context, t journal.Transition) (int64, error)
}

// Options configures a Gateway. Zero values select the defaults.
type Options struct {
	// Sender is the source address of frames the gateway originates.
	Sender hapcan.Address

	// QueueCapacity bounds the event queue.
	QueueCapacity int

	// StatusRate and StatusBurst limit status requests on the bus. A
	// zero StatusRate disables limiting.
	StatusRate  rate.Limit
	StatusBurst int

	// IDs generates generation IDs. Defaults to UUIDv7.
	IDs rules.IDGenerator

	// Journal is optional.
	Journal Journal

	// Metrics defaults to a fresh unregistered set.
	Metrics *metrics.Metrics
}

// Gateway is the rule engine facade.
type Gateway struct {
	store      *rules.Store
	events     *queue.Queue
	matcher    *matcher.Matcher
	tracker    *loads.Tracker
	timers     *timer.Service
	dispatcher *dispatch.Dispatcher
	engine     *engine.Engine

	bus     hapcan.Sender
	limiter *rate.Limiter
	ids     rules.IDGenerator
	journal Journal
	metrics *metrics.Metrics

	reloadMu sync.Mutex
}

// New creates a gateway sending on bus. Nothing is loaded until the
// first Reload.
func New(bus hapcan.Sender, opts Options) *Gateway {
	if opts.IDs == nil {
		opts.IDs = rules.UUIDv7Generator{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	limit, burst := opts.StatusRate, opts.StatusBurst
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}

	g := &Gateway{
		store:   rules.NewStore(),
		events:  queue.New(opts.QueueCapacity),
		timers:  timer.NewService(),
		bus:     bus,
		limiter: rate.NewLimiter(limit, burst),
		ids:     opts.IDs,
		journal: opts.Journal,
		metrics: opts.Metrics,
	}
	g.matcher = matcher.New(g.store, g.events, g.metrics)
	g.tracker = loads.NewTracker(bus, opts.Sender, g.metrics)
	g.dispatcher = dispatch.New(g.store, bus, g.metrics)

	var engineOpts []engine.Option
	if opts.Journal != nil {
		engineOpts = append(engineOpts, engine.WithRecorder(opts.Journal))
	}
	g.engine = engine.New(g.store, g.events, g.dispatcher, g.tracker, g.metrics, engineOpts...)

	return g
}

// OnFrame delivers one received frame: load statuses are updated, then
// matching event sets are queued. It returns the number of matches.
func (g *Gateway) OnFrame(f hapcan.Frame, ts time.Time) int {
	g.metrics.FramesReceived.Inc()
	g.tracker.OnFrame(f)
	return g.matcher.OnFrame(f, ts)
}

// Periodic advances the timers by one tick and returns the machines
// whose timer expired on it. The engine does not read timers; callers
// use the returned ids or TimerStatus as a guard.
func (g *Gateway) Periodic() []uint16 {
	expired := g.timers.Periodic()
	for _, id := range expired {
		slog.Debug("timer expired", "state_machine", id)
	}
	return expired
}

// PollStatus sends a status request for every (node, group) that still
// has an undefined load, within the status rate limit. Requests over the
// limit are skipped and retried on the next poll. It returns the number
// of requests sent.
func (g *Gateway) PollStatus() int {
	sent := 0
	for _, f := range g.tracker.StatusRequests() {
		if !g.limiter.Allow() {
			slog.Debug("status request deferred", "node", f.Data(2), "group", f.Data(3))
			continue
		}
		err := g.bus.Send(f)
		g.metrics.RecordSend(metrics.FrameStatusRequest, err)
		if err != nil {
			slog.Error("send status request failed", "frame", f.String(), "error", err)
			continue
		}
		sent++
	}
	return sent
}

// Run drives the engine until ctx is cancelled or Close is called.
func (g *Gateway) Run(ctx context.Context) error {
	return g.engine.Run(ctx)
}

// Drain processes the events queued right now.
func (g *Gateway) Drain(ctx context.Context) (int, error) {
	return g.engine.Drain(ctx)
}

// Close stops accepting events. Run returns once the queue is empty.
func (g *Gateway) Close() {
	g.events.Close()
}

// SendActionsFromID sends every frame of action set id.
func (g *Gateway) SendActionsFromID(id uint16) dispatch.Report {
	return g.dispatcher.SendActionsFromID(id)
}

// IsAnyLoadOn returns the aggregated load status of machine id.
func (g *Gateway) IsAnyLoadOn(id uint16) loads.Status {
	return g.tracker.IsAnyLoadOn(id)
}

// SetLoadsOff switches off every load of machine id.
func (g *Gateway) SetLoadsOff(id uint16) error {
	return g.tracker.SetLoadsOff(id)
}

// TimerStatus returns the timer status of machine id.
func (g *Gateway) TimerStatus(id uint16) timer.Status {
	return g.timers.Status(id)
}

// SetTimer arms the timer of machine id.
func (g *Gateway) SetTimer(id uint16, ticks int16) bool {
	return g.timers.SetTimer(id, ticks)
}

// State returns the current state of machine id.
func (g *Gateway) State(id uint16) uint16 {
	return g.engine.State(id)
}

// Status is a point-in-time view of the gateway.
type Status struct {
	Generation string                `json:"generation"`
	Machines   []loads.MachineStatus `json:"machines"`
	Loads      []loads.LoadStatus    `json:"loads"`
	Timers     []timer.Timer         `json:"timers"`
	QueueDepth int                   `json:"queue_depth"`
	States     map[uint16]uint16     `json:"states"`
}

// Status returns a snapshot of the gateway's tables.
func (g *Gateway) Status() Status {
	st := Status{
		Generation: g.store.Info().ID,
		Machines:   g.tracker.Machines(),
		Loads:      g.tracker.Loads(),
		Timers:     g.timers.Snapshot(),
		QueueDepth: g.events.Len(),
		States:     map[uint16]uint16{},
	}
	for _, t := range st.Timers {
		st.States[t.StateMachineID] = g.engine.State(t.StateMachineID)
	}
	return st
}
