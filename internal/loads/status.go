// Package loads tracks the on/off status of physical loads and derives
// the status of each state machine from the loads it owns.
package loads

import (
	"fmt"

	"github.com/roach88/harpi/internal/ir"
)

// Status is the status of a load or of a state machine.
type Status int

const (
	// Undefined means no status frame has been seen since the last reload.
	Undefined Status = iota
	Off
	On
	// NoLoads is returned for a state machine id that owns no loads.
	NoLoads
)

func (s Status) String() string {
	switch s {
	case Undefined:
		return "undefined"
	case Off:
		return "off"
	case On:
		return "on"
	case NoLoads:
		return "no_loads"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// gauge is the metric value of a machine status.
func (s Status) gauge() float64 {
	switch s {
	case On:
		return 1
	case Off:
		return 0
	default:
		return -1
	}
}

// LoadStatus is the last known status of one bound load.
type LoadStatus struct {
	Binding ir.LoadBinding `json:"binding"`
	Status  Status         `json:"status"`
}

// MachineStatus is the aggregated status of one state machine.
type MachineStatus struct {
	ID     uint16 `json:"id"`
	Status Status `json:"status"`
}

// Aggregate combines load statuses: Undefined if any is Undefined, else
// On if any is On, else Off. An empty list is NoLoads.
func Aggregate(statuses []Status) Status {
	if len(statuses) == 0 {
		return NoLoads
	}
	out := Off
	for _, s := range statuses {
		switch s {
		case Undefined:
			return Undefined
		case On:
			out = On
		}
	}
	return out
}
