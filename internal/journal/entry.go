package journal

import "time"

// Reload is one configuration reload attempt.
type Reload struct {
	Seq        int64          `json:"seq"`
	Generation string         `json:"generation"`
	Sources    []string       `json:"sources"`
	OK         bool           `json:"ok"`
	Error      string         `json:"error,omitempty"`
	Counts     map[string]int `json:"counts"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Transition is one state machine step taken by the engine.
type Transition struct {
	Seq            int64     `json:"seq"`
	Generation     string    `json:"generation"`
	StateMachineID uint16    `json:"state_machine"`
	FromState      uint16    `json:"from_state"`
	ToState        uint16    `json:"to_state"`
	EventSetID     uint16    `json:"event_set"`
	ActionSets     []uint16  `json:"action_sets"`
	RecordedAt     time.Time `json:"recorded_at"`
}
