// Package csvconfig ingests HARPI rule configuration from CSV sources.
//
// Every line starts with a section token naming the table it belongs to,
// followed by that section's fields:
//
//	State Machines and Loads,   sm, type, node(hex), group(hex), channel
//	State Machines and Events,  sm, eventSet
//	Action Sets,                actionSet, 12 x frame byte (hex)
//	States and Actions,         sm, state, eventSet, actionSet
//	State Transitions,          sm, state, eventSet, newState
//	Event Sets,                 eventSet, 12 x op (x e n < >), 12 x value (hex)
//
// A line holding only a section token is a header and produces no record.
//
// Identifiers are written zero-based per source. Ingest shifts the state
// machine, action set and event set identifiers of each source past the
// highest identifier of the sources before it, so independently authored
// files never collide. State identifiers are local to a machine and are
// not shifted.
//
// Ingestion is all-or-nothing: the first malformed line fails the whole
// call and no records are returned.
package csvconfig
