package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/harpi/internal/csvconfig"
	"github.com/roach88/harpi/internal/hapcan"
	"github.com/roach88/harpi/internal/ir"
	"github.com/roach88/harpi/internal/rules"
)

// InspectResult is the rule tables of a configuration directory grouped
// by state machine.
type InspectResult struct {
	Sources    []string        `json:"sources"`
	Machines   []MachineView   `json:"machines"`
	EventSets  []EventSetView  `json:"event_sets"`
	ActionSets []ActionSetView `json:"action_sets"`
}

// MachineView is everything bound to one state machine.
type MachineView struct {
	ID          uint16               `json:"id"`
	Loads       []ir.LoadBinding     `json:"loads"`
	Events      []uint16             `json:"events"`
	Actions     []ir.StateAction     `json:"actions"`
	Transitions []ir.StateTransition `json:"transitions"`
}

// EventSetView renders an event set filter one byte per token: the
// operator followed by the byte value, or "x--" for an unchecked byte.
type EventSetView struct {
	ID     uint16 `json:"id"`
	Filter string `json:"filter"`
}

// ActionSetView lists the frames of one action set in send order.
type ActionSetView struct {
	ID     uint16         `json:"id"`
	Frames []hapcan.Frame `json:"frames"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <config-dir>",
		Short: "Print the rule tables of a configuration directory",
		Long: `Ingest a configuration directory and print what the engine would run:
per state machine its loads, events, actions and transitions, followed
by every event set filter and action set frame. IDs are shown after
remapping, as the engine sees them.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runInspect(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	l, err := loadDir(dir, rules.UUIDv7Generator{})
	if err != nil {
		return reportLoadError(formatter, err)
	}
	return formatter.Success(newInspectResult(l.Ingest.Sources, l.Generation))
}

func newInspectResult(sources []csvconfig.SourceInfo, g *rules.Generation) InspectResult {
	res := InspectResult{
		Sources:    make([]string, len(sources)),
		Machines:   []MachineView{},
		EventSets:  make([]EventSetView, 0, len(g.EventSets)),
		ActionSets: []ActionSetView{},
	}
	for i, s := range sources {
		res.Sources[i] = s.Name
	}

	for _, id := range g.MachineIDs() {
		m := MachineView{
			ID:          id,
			Loads:       []ir.LoadBinding{},
			Events:      []uint16{},
			Actions:     []ir.StateAction{},
			Transitions: []ir.StateTransition{},
		}
		for _, l := range g.LoadBindings {
			if l.StateMachineID == id {
				m.Loads = append(m.Loads, l)
			}
		}
		for _, b := range g.EventBindings {
			if b.StateMachineID == id {
				m.Events = append(m.Events, b.EventSetID)
			}
		}
		for _, a := range g.StateActions {
			if a.StateMachineID == id {
				m.Actions = append(m.Actions, a)
			}
		}
		for _, t := range g.StateTransitions {
			if t.StateMachineID == id {
				m.Transitions = append(m.Transitions, t)
			}
		}
		res.Machines = append(res.Machines, m)
	}

	for _, es := range g.EventSets {
		res.EventSets = append(res.EventSets, EventSetView{ID: es.ID, Filter: formatFilter(es)})
	}

	byID := map[uint16]int{}
	for _, a := range g.ActionSets {
		i, ok := byID[a.ID]
		if !ok {
			i = len(res.ActionSets)
			byID[a.ID] = i
			res.ActionSets = append(res.ActionSets, ActionSetView{ID: a.ID})
		}
		res.ActionSets[i].Frames = append(res.ActionSets[i].Frames, a.Frame)
	}
	sort.SliceStable(res.ActionSets, func(i, j int) bool { return res.ActionSets[i].ID < res.ActionSets[j].ID })

	return res
}

func formatFilter(es ir.EventSet) string {
	tokens := make([]string, len(es.Conditions))
	for i, op := range es.Conditions {
		if op == ir.AnyByte {
			tokens[i] = "x--"
			continue
		}
		tokens[i] = fmt.Sprintf("%s%02X", op, es.Values[i])
	}
	return strings.Join(tokens, " ")
}

func (r InspectResult) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Sources: %s\n", strings.Join(r.Sources, ", "))

	for _, m := range r.Machines {
		fmt.Fprintf(&b, "\n=== State machine %d ===\n", m.ID)

		if len(m.Loads) == 0 {
			b.WriteString("  Loads: (none)\n")
		} else {
			b.WriteString("  Loads:\n")
			for _, l := range m.Loads {
				fmt.Fprintf(&b, "    %s node %02X group %02X channel %d\n", l.Load, l.Node, l.Group, l.Channel)
			}
		}

		if len(m.Events) == 0 {
			b.WriteString("  Events: (none)\n")
		} else {
			ids := make([]string, len(m.Events))
			for i, id := range m.Events {
				ids[i] = fmt.Sprint(id)
			}
			fmt.Fprintf(&b, "  Events: %s\n", strings.Join(ids, ", "))
		}

		if len(m.Actions) == 0 {
			b.WriteString("  Actions: (none)\n")
		} else {
			b.WriteString("  Actions:\n")
			for _, a := range m.Actions {
				fmt.Fprintf(&b, "    state %d + event %d -> action set %d\n", a.CurrentState, a.EventSetID, a.ActionSetID)
			}
		}

		if len(m.Transitions) == 0 {
			b.WriteString("  Transitions: (none)\n")
		} else {
			b.WriteString("  Transitions:\n")
			for _, t := range m.Transitions {
				fmt.Fprintf(&b, "    state %d + event %d -> state %d\n", t.CurrentState, t.EventSetID, t.NewState)
			}
		}
	}

	b.WriteString("\n=== Event sets ===\n")
	if len(r.EventSets) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, es := range r.EventSets {
		fmt.Fprintf(&b, "  %d: %s\n", es.ID, es.Filter)
	}

	b.WriteString("\n=== Action sets ===\n")
	if len(r.ActionSets) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, as := range r.ActionSets {
		for _, f := range as.Frames {
			fmt.Fprintf(&b, "  %d: %s\n", as.ID, f)
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}
