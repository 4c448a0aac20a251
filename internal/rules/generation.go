package rules

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/harpi/internal/ir"
)

// Generation is one fully built rule set.
type Generation struct {
	ID               string
	LoadBindings     []ir.LoadBinding
	EventBindings    []ir.EventBinding
	ActionSets       []ir.ActionSet
	StateActions     []ir.StateAction
	StateTransitions []ir.StateTransition
	EventSets        []ir.EventSet
	Counts           map[ir.Kind]int
}

// Build turns an ingested record stream into a generation.
func Build(records []ir.Record, ids IDGenerator) (*Generation, error) {
	return build(records, countRecords(records), ids)
}

func countRecords(records []ir.Record) map[ir.Kind]int {
	counts := make(map[ir.Kind]int, len(ir.Kinds))
	for _, r := range records {
		counts[r.Kind()]++
	}
	return counts
}

// build allocates every collection to counts and copies records into it.
// A record beyond its kind's count aborts the build.
func build(records []ir.Record, counts map[ir.Kind]int, ids IDGenerator) (*Generation, error) {
	g := &Generation{
		LoadBindings:     make([]ir.LoadBinding, 0, counts[ir.KindLoadBinding]),
		EventBindings:    make([]ir.EventBinding, 0, counts[ir.KindEventBinding]),
		ActionSets:       make([]ir.ActionSet, 0, counts[ir.KindActionSet]),
		StateActions:     make([]ir.StateAction, 0, counts[ir.KindStateAction]),
		StateTransitions: make([]ir.StateTransition, 0, counts[ir.KindStateTransition]),
		EventSets:        make([]ir.EventSet, 0, counts[ir.KindEventSet]),
	}

	for _, r := range records {
		var err error
		switch rec := r.(type) {
		case ir.LoadBinding:
			g.LoadBindings, err = add(g.LoadBindings, rec)
		case ir.EventBinding:
			g.EventBindings, err = add(g.EventBindings, rec)
		case ir.ActionSet:
			g.ActionSets, err = add(g.ActionSets, rec)
		case ir.StateAction:
			g.StateActions, err = add(g.StateActions, rec)
		case ir.StateTransition:
			g.StateTransitions, err = add(g.StateTransitions, rec)
		case ir.EventSet:
			g.EventSets, err = add(g.EventSets, rec)
		default:
			return nil, fmt.Errorf("rule store: unexpected record type %T", r)
		}
		if err != nil {
			slog.Error("rule store build aborted", "kind", r.Kind().String(), "error", err)
			return nil, err
		}
	}

	g.Counts = map[ir.Kind]int{
		ir.KindLoadBinding:     len(g.LoadBindings),
		ir.KindEventBinding:    len(g.EventBindings),
		ir.KindActionSet:       len(g.ActionSets),
		ir.KindStateAction:     len(g.StateActions),
		ir.KindStateTransition: len(g.StateTransitions),
		ir.KindEventSet:        len(g.EventSets),
	}
	g.ID = ids.Generate()
	return g, nil
}

// add appends rec without growing past the capacity fixed in the
// counting phase.
func add[T ir.Record](items []T, rec T) ([]T, error) {
	if len(items) == cap(items) {
		return items, &CapacityError{Kind: rec.Kind(), Capacity: cap(items)}
	}
	return append(items, rec), nil
}

// MachineIDs returns the sorted set of state machine ids the generation
// refers to.
func (g *Generation) MachineIDs() []uint16 {
	set := map[uint16]struct{}{}
	for _, r := range g.LoadBindings {
		set[r.StateMachineID] = struct{}{}
	}
	for _, r := range g.EventBindings {
		set[r.StateMachineID] = struct{}{}
	}
	for _, r := range g.StateActions {
		set[r.StateMachineID] = struct{}{}
	}
	for _, r := range g.StateTransitions {
		set[r.StateMachineID] = struct{}{}
	}

	ids := make([]uint16, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
