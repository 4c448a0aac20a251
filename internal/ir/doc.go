// Package ir provides the rule records that flow from the CSV ingestor
// into the rule store.
//
// A configuration generation is described by six record kinds. Each kind
// is its own value type implementing Record, so a record carries only the
// fields of its section.
//
// Key design constraints:
//   - ir imports nothing internal except hapcan (the frame type)
//   - identifiers are uint16 and already remapped into one global ID
//     space by the time a record leaves the ingestor
//   - state identifiers are per machine and never remapped
package ir
