// Package gateway wires the rule engine together and exposes it to the
// process that owns the bus.
//
// A Gateway owns one rule store, event queue, load tracker, timer table,
// dispatcher and engine. The owner delivers frames with OnFrame, ticks
// timers with Periodic, polls undefined loads with PollStatus and runs
// the engine loop with Run. Configuration changes arrive through Reload
// or ReloadDir.
//
// Reload order: ingest, build, publish, rebuild the tracker, recreate the
// timers, reset machine states. A source that fails to parse leaves the
// previous generation active. A build fault empties the store.
package gateway
