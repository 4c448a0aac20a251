// Package rules holds the active rule generation.
//
// A generation is built from the record stream of one ingestion in two
// phases: records are counted per kind, then each collection is allocated
// to exactly that size and filled. The result is published into a Store
// whose six collections each carry their own read/write lock. A reader of
// one collection sees either the previous generation's slice or the new
// one, never a mix, and published slices are never mutated afterwards.
//
// Current state machine states are not part of a generation; the engine
// run loop owns them.
package rules
