package rules

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/harpi/internal/ir"
)

// Collection is one independently locked rule table.
//
// The slice held by a collection is replaced, never mutated, so a
// snapshot returned to a caller stays valid after the lock is released.
type Collection[T any] struct {
	mu    sync.RWMutex
	items []T
}

// Snapshot returns the current slice. Callers must not modify it.
func (c *Collection[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items
}

// Len returns the number of items in the current slice.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// At returns item i of the current slice. A reload between two calls may
// shrink the slice, so ok reports whether i is still in range.
func (c *Collection[T]) At(i int) (item T, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.items) {
		return item, false
	}
	return c.items[i], true
}

// Select returns the items for which keep reports true, evaluated under
// the read lock. keep must not block or send frames.
func (c *Collection[T]) Select(keep func(T) bool) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []T
	for _, it := range c.items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

func (c *Collection[T]) replace(items []T) {
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
}

// Info describes the published generation.
type Info struct {
	ID     string          `json:"id"`
	Counts map[ir.Kind]int `json:"-"`
}

// Store is the set of rule tables the gateway reads from.
type Store struct {
	LoadBindings     Collection[ir.LoadBinding]
	EventBindings    Collection[ir.EventBinding]
	ActionSets       Collection[ir.ActionSet]
	StateActions     Collection[ir.StateAction]
	StateTransitions Collection[ir.StateTransition]
	EventSets        Collection[ir.EventSet]

	info atomic.Pointer[Info]
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	s.info.Store(&Info{Counts: map[ir.Kind]int{}})
	return s
}

// Publish makes g the active generation, one collection at a time. Event
// sets go last so frames are only classified against the new generation
// once its tables are in place.
func (s *Store) Publish(g *Generation) {
	s.LoadBindings.replace(g.LoadBindings)
	s.EventBindings.replace(g.EventBindings)
	s.ActionSets.replace(g.ActionSets)
	s.StateActions.replace(g.StateActions)
	s.StateTransitions.replace(g.StateTransitions)
	s.EventSets.replace(g.EventSets)

	s.info.Store(&Info{ID: g.ID, Counts: g.Counts})

	slog.Info("rule generation published",
		"generation", g.ID,
		"load_bindings", len(g.LoadBindings),
		"event_bindings", len(g.EventBindings),
		"action_sets", len(g.ActionSets),
		"state_actions", len(g.StateActions),
		"state_transitions", len(g.StateTransitions),
		"event_sets", len(g.EventSets),
	)
}

// Reset empties every collection.
func (s *Store) Reset() {
	s.EventSets.replace(nil)
	s.LoadBindings.replace(nil)
	s.EventBindings.replace(nil)
	s.ActionSets.replace(nil)
	s.StateActions.replace(nil)
	s.StateTransitions.replace(nil)

	s.info.Store(&Info{Counts: map[ir.Kind]int{}})
	slog.Warn("rule store reset")
}

// Info returns the published generation's description. ID is empty when
// nothing is published.
func (s *Store) Info() Info {
	return *s.info.Load()
}
