// Package engine implements the HARPI state machine engine.
//
// The engine consumes logical events from the bounded event queue. For
// each event, every state machine bound to the event's set is looked up
// in the StateAction and StateTransition tables of the active generation
// with its current state. Matching action sets are dispatched and the
// machine advances to the bound new state.
//
// ARCHITECTURE:
//
// Single-Consumer Event Loop:
// Run drains the queue in one goroutine. Events are handled in the order
// the matcher queued them, and the machines bound to one event set are
// evaluated in EventBinding declaration order.
//
// States:
// States are plain integers owned by the engine, not by the rule tables.
// A reload puts every machine back in the idle state (0). Entering the
// idle state from any other state switches off every load the machine
// owns.
//
// A missing row is not an error: the machine stays where it is.
package engine
