// Package timer keeps one countdown per state machine, advanced by an
// external periodic tick.
package timer

import (
	"fmt"
	"sync"
)

// Status is the state of one countdown.
type Status int

const (
	// Unavailable is returned for an unknown state machine id.
	Unavailable Status = iota
	Init
	Running
	Expired
)

func (s Status) String() string {
	switch s {
	case Unavailable:
		return "unavailable"
	case Init:
		return "init"
	case Running:
		return "running"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Timer is the countdown of one state machine. Remaining is -1 until
// the timer is first armed.
type Timer struct {
	StateMachineID uint16 `json:"state_machine_id"`
	Status         Status `json:"status"`
	Remaining      int16  `json:"remaining"`
}

// Service holds the timer table. All methods are safe for concurrent use
// and none performs I/O.
type Service struct {
	mu     sync.Mutex
	timers map[uint16]*Timer
}

// NewService creates an empty timer table.
func NewService() *Service {
	return &Service{timers: map[uint16]*Timer{}}
}

// CreateTimers replaces the table with one Init timer per id.
func (s *Service) CreateTimers(ids []uint16) {
	timers := make(map[uint16]*Timer, len(ids))
	for _, id := range ids {
		timers[id] = &Timer{StateMachineID: id, Status: Init, Remaining: -1}
	}

	s.mu.Lock()
	s.timers = timers
	s.mu.Unlock()
}

// SetTimer arms the timer of id to expire after ticks periodic calls.
// A ticks of 0 expires on the next tick. It reports false for an
// unknown id or a negative ticks.
func (s *Service) SetTimer(id uint16, ticks int16) bool {
	if ticks < 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[id]
	if !ok {
		return false
	}
	t.Status = Running
	t.Remaining = ticks
	return true
}

// Periodic advances every running timer by one tick and returns the ids
// that expired on this tick. Expired timers hold until re-armed.
func (s *Service) Periodic() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []uint16
	for id, t := range s.timers {
		if t.Status != Running {
			continue
		}
		if t.Remaining > 0 {
			t.Remaining--
		}
		if t.Remaining == 0 {
			t.Status = Expired
			expired = append(expired, id)
		}
	}
	return expired
}

// Status returns the status of the timer of id, or Unavailable.
func (s *Service) Status(id uint16) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[id]; ok {
		return t.Status
	}
	return Unavailable
}

// Remaining returns the ticks left on the timer of id. ok is false for
// an unknown id.
func (s *Service) Remaining(id uint16) (remaining int16, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[id]
	if !ok {
		return 0, false
	}
	return t.Remaining, true
}

// Snapshot returns a copy of every timer.
func (s *Service) Snapshot() []Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Timer, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, *t)
	}
	return out
}
