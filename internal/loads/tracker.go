package loads

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/roach88/harpi/internal/hapcan"
	"github.com/roach88/harpi/internal/ir"
	"github.com/roach88/harpi/internal/metrics"
)

// Tracker holds load statuses, machine statuses and the precomputed
// off-frame table of the active generation under one lock.
type Tracker struct {
	mu        sync.Mutex
	loads     []LoadStatus
	machines  []MachineStatus // sorted by ID
	offFrames map[uint16][]hapcan.Frame

	sender  hapcan.Address
	bus     hapcan.Sender
	metrics *metrics.Metrics
}

// NewTracker creates an empty tracker. Frames it originates carry
// sender as their source address.
func NewTracker(bus hapcan.Sender, sender hapcan.Address, m *metrics.Metrics) *Tracker {
	return &Tracker{
		offFrames: map[uint16][]hapcan.Frame{},
		sender:    sender,
		bus:       bus,
		metrics:   m,
	}
}

// Tables are the load and off-frame tables derived from one generation.
type Tables struct {
	loads     []LoadStatus
	offFrames map[uint16][]hapcan.Frame
}

// Prepare derives the tables of a new generation from its load bindings.
// Every load starts Undefined. The tracker itself is not changed.
func (t *Tracker) Prepare(bindings []ir.LoadBinding) Tables {
	loads := make([]LoadStatus, len(bindings))
	for i, b := range bindings {
		loads[i] = LoadStatus{Binding: b, Status: Undefined}
	}
	return Tables{loads: loads, offFrames: buildOffFrames(bindings, t.sender)}
}

// Install makes tables the tracker's tables. commit, if not nil, runs
// under the tracker lock just before the swap, so no tracker call can
// observe the old tables once commit has started. commit must not call
// back into the tracker.
func (t *Tracker) Install(tables Tables, commit func()) {
	t.mu.Lock()
	if commit != nil {
		commit()
	}
	t.loads = tables.loads
	t.offFrames = tables.offFrames
	t.recomputeLocked()
	machines := len(t.machines)
	t.mu.Unlock()

	t.metrics.MachineStatus.Reset()
	t.publishMetrics()

	slog.Debug("load tracker rebuilt", "loads", len(tables.loads), "machines", machines, "off_frames", len(tables.offFrames))
}

// Rebuild replaces every derived table from the load bindings of a new
// generation.
func (t *Tracker) Rebuild(bindings []ir.LoadBinding) {
	t.Install(t.Prepare(bindings), nil)
}

// buildOffFrames coalesces, per machine, the relay channels sharing a
// (node, group) into one direct control frame.
func buildOffFrames(bindings []ir.LoadBinding, sender hapcan.Address) map[uint16][]hapcan.Frame {
	type key struct {
		machine uint16
		addr    hapcan.Address
	}
	masks := map[key]uint8{}
	var order []key

	for _, b := range bindings {
		if b.Load != ir.LoadRelay {
			continue
		}
		bit, ok := hapcan.ChannelBit(b.Channel)
		if !ok {
			slog.Warn("relay channel cannot be switched off",
				"state_machine", b.StateMachineID,
				"node", b.Node,
				"group", b.Group,
				"channel", b.Channel,
			)
			continue
		}
		k := key{machine: b.StateMachineID, addr: hapcan.Address{Node: b.Node, Group: b.Group}}
		if _, seen := masks[k]; !seen {
			order = append(order, k)
		}
		masks[k] |= bit
	}

	out := make(map[uint16][]hapcan.Frame, len(order))
	for _, k := range order {
		out[k.machine] = append(out[k.machine], hapcan.RelayOffFrame(sender, k.addr, masks[k]))
	}
	return out
}

// OnFrame applies a status frame to every matching load and reports
// whether any status changed.
func (t *Tracker) OnFrame(f hapcan.Frame) bool {
	channel, state, ok := hapcan.RelayStatus(f)
	if !ok {
		return false
	}

	var status Status
	switch state {
	case hapcan.RelayOff:
		status = Off
	case hapcan.RelayOn:
		status = On
	default:
		return false
	}

	t.mu.Lock()
	changed := false
	for i := range t.loads {
		b := t.loads[i].Binding
		if b.Load != ir.LoadRelay || b.Node != f.Node() || b.Group != f.Group() || b.Channel != channel {
			continue
		}
		if t.loads[i].Status != status {
			t.loads[i].Status = status
			changed = true
		}
	}
	if changed {
		t.recomputeLocked()
	}
	t.mu.Unlock()

	if changed {
		t.publishMetrics()
		slog.Debug("load status changed",
			"node", f.Node(),
			"group", f.Group(),
			"channel", channel,
			"status", status.String(),
		)
	}
	return changed
}

// recomputeLocked rebuilds every machine status from the load table.
func (t *Tracker) recomputeLocked() {
	byMachine := map[uint16][]Status{}
	for _, l := range t.loads {
		id := l.Binding.StateMachineID
		byMachine[id] = append(byMachine[id], l.Status)
	}

	machines := make([]MachineStatus, 0, len(byMachine))
	for id, statuses := range byMachine {
		machines = append(machines, MachineStatus{ID: id, Status: Aggregate(statuses)})
	}
	sort.Slice(machines, func(i, j int) bool { return machines[i].ID < machines[j].ID })
	t.machines = machines
}

func (t *Tracker) publishMetrics() {
	for _, m := range t.Machines() {
		t.metrics.MachineStatus.WithLabelValues(strconv.Itoa(int(m.ID))).Set(m.Status.gauge())
	}
}

// IsAnyLoadOn returns the aggregated status of machine id, or NoLoads
// if id owns no loads.
func (t *Tracker) IsAnyLoadOn(id uint16) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := sort.Search(len(t.machines), func(i int) bool { return t.machines[i].ID >= id })
	if i < len(t.machines) && t.machines[i].ID == id {
		return t.machines[i].Status
	}
	return NoLoads
}

// SetLoadsOff sends the precomputed off frames of machine id. Every
// frame is attempted; failures are joined into the returned error.
func (t *Tracker) SetLoadsOff(id uint16) error {
	t.mu.Lock()
	frames := t.offFrames[id]
	t.mu.Unlock()

	if len(frames) == 0 {
		slog.Debug("no loads to switch off", "state_machine", id)
		return nil
	}

	var errs []error
	for _, f := range frames {
		err := t.bus.Send(f)
		t.metrics.RecordSend(metrics.FrameLoadsOff, err)
		if err != nil {
			slog.Error("send off frame failed", "state_machine", id, "frame", f.String(), "error", err)
			errs = append(errs, fmt.Errorf("send %s: %w", f, err))
		}
	}
	return errors.Join(errs...)
}

// StatusRequests returns one status request per (node, group) that still
// has an Undefined load, in binding order.
func (t *Tracker) StatusRequests() []hapcan.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := map[hapcan.Address]bool{}
	var frames []hapcan.Frame
	for _, l := range t.loads {
		if l.Status != Undefined {
			continue
		}
		addr := hapcan.Address{Node: l.Binding.Node, Group: l.Binding.Group}
		if seen[addr] {
			continue
		}
		seen[addr] = true
		frames = append(frames, hapcan.StatusRequestFrame(t.sender, addr))
	}
	return frames
}

// Loads returns a copy of the load table.
func (t *Tracker) Loads() []LoadStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]LoadStatus(nil), t.loads...)
}

// Machines returns a copy of the machine status table.
func (t *Tracker) Machines() []MachineStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]MachineStatus(nil), t.machines...)
}
