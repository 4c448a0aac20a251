package ir

import (
	"fmt"

	"github.com/roach88/harpi/internal/hapcan"
)

// Kind identifies the section a record was declared in.
type Kind int

const (
	KindLoadBinding Kind = iota + 1
	KindEventBinding
	KindActionSet
	KindStateAction
	KindStateTransition
	KindEventSet
)

// Kinds lists every record kind in section order.
var Kinds = []Kind{
	KindLoadBinding,
	KindEventBinding,
	KindActionSet,
	KindStateAction,
	KindStateTransition,
	KindEventSet,
}

var sectionNames = map[Kind]string{
	KindLoadBinding:     "State Machines and Loads",
	KindEventBinding:    "State Machines and Events",
	KindActionSet:       "Action Sets",
	KindStateAction:     "States and Actions",
	KindStateTransition: "State Transitions",
	KindEventSet:        "Event Sets",
}

var kindNames = map[Kind]string{
	KindLoadBinding:     "load_binding",
	KindEventBinding:    "event_binding",
	KindActionSet:       "action_set",
	KindStateAction:     "state_action",
	KindStateTransition: "state_transition",
	KindEventSet:        "event_set",
}

// Section returns the CSV section token for the kind.
func (k Kind) Section() string {
	return sectionNames[k]
}

// String returns the snake_case name used in logs and metrics.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// KindForSection maps a CSV section token to its kind.
func KindForSection(section string) (Kind, bool) {
	for k, name := range sectionNames {
		if name == section {
			return k, true
		}
	}
	return 0, false
}

// Record is one parsed configuration line.
type Record interface {
	Kind() Kind
}

// LoadKind is the type of a physical load.
type LoadKind uint8

const (
	// LoadRelay is a relay module channel.
	LoadRelay LoadKind = iota + 1
)

// String returns the configuration spelling of the load kind.
func (k LoadKind) String() string {
	switch k {
	case LoadRelay:
		return "Relay"
	default:
		return fmt.Sprintf("load(%d)", uint8(k))
	}
}

// MarshalText encodes the load kind by its configuration spelling.
func (k LoadKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseLoadKind maps a configuration type string to a load kind.
// Unknown strings are rejected rather than defaulted.
func ParseLoadKind(s string) (LoadKind, bool) {
	switch s {
	case "Relay":
		return LoadRelay, true
	default:
		return 0, false
	}
}

// FilterOp is the per-byte comparison of an event set.
type FilterOp byte

const (
	AnyByte        FilterOp = 'x' // byte not checked
	Equal          FilterOp = 'e' // frame byte == filter byte
	NotEqual       FilterOp = 'n' // frame byte != filter byte
	LessOrEqual    FilterOp = '<' // frame byte <= filter byte
	GreaterOrEqual FilterOp = '>' // frame byte >= filter byte
)

// Valid reports whether op is one of the five canonical tokens.
func (op FilterOp) Valid() bool {
	switch op {
	case AnyByte, Equal, NotEqual, LessOrEqual, GreaterOrEqual:
		return true
	}
	return false
}

// String returns the single-character token.
func (op FilterOp) String() string {
	return string(rune(op))
}

// MarshalText encodes the operator as its token.
func (op FilterOp) MarshalText() ([]byte, error) {
	return []byte{byte(op)}, nil
}

// LoadBinding binds one physical output to a state machine.
type LoadBinding struct {
	StateMachineID uint16   `json:"state_machine_id"`
	Load           LoadKind `json:"load"`
	Node           uint8    `json:"node"`
	Group          uint8    `json:"group"`
	Channel        uint8    `json:"channel"`
}

// EventBinding declares that an event set is relevant to a state machine.
type EventBinding struct {
	StateMachineID uint16 `json:"state_machine_id"`
	EventSetID     uint16 `json:"event_set_id"`
}

// ActionSet is one frame dispatched when the action set fires. Several
// ActionSet records may share an ID.
type ActionSet struct {
	ID    uint16       `json:"id"`
	Frame hapcan.Frame `json:"frame"`
}

// StateAction binds (machine, state, event) to an action set.
type StateAction struct {
	StateMachineID uint16 `json:"state_machine_id"`
	CurrentState   uint16 `json:"current_state"`
	EventSetID     uint16 `json:"event_set_id"`
	ActionSetID    uint16 `json:"action_set_id"`
}

// StateTransition binds (machine, state, event) to a new state.
type StateTransition struct {
	StateMachineID uint16 `json:"state_machine_id"`
	CurrentState   uint16 `json:"current_state"`
	EventSetID     uint16 `json:"event_set_id"`
	NewState       uint16 `json:"new_state"`
}

// EventSet is a byte-wise filter that classifies incoming frames.
type EventSet struct {
	ID         uint16                    `json:"id"`
	Conditions [hapcan.FrameLen]FilterOp `json:"conditions"`
	Values     [hapcan.FrameLen]byte     `json:"values"`
}

func (LoadBinding) Kind() Kind     { return KindLoadBinding }
func (EventBinding) Kind() Kind    { return KindEventBinding }
func (ActionSet) Kind() Kind       { return KindActionSet }
func (StateAction) Kind() Kind     { return KindStateAction }
func (StateTransition) Kind() Kind { return KindStateTransition }
func (EventSet) Kind() Kind        { return KindEventSet }
