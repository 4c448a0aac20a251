package csvconfig

import (
	"fmt"
	"math"
)

// idSpace shifts one kind of identifier (state machine, action set or
// event set) from per-source numbering into the global space.
type idSpace struct {
	name   string
	offset uint32 // added to every raw id of the current source
	max    uint32 // highest remapped id seen in the current source
	seen   bool
}

// remap shifts raw by the current offset. A result that no longer fits
// in 16 bits fails the line.
func (s *idSpace) remap(raw uint16) (uint16, error) {
	v := uint32(raw) + s.offset
	if v > math.MaxUint16 {
		return 0, fmt.Errorf("%s id %d shifted by %d exceeds 65535", s.name, raw, s.offset)
	}
	if !s.seen || v > s.max {
		s.max = v
		s.seen = true
	}
	return uint16(v), nil
}

// advance moves the offset past the current source's highest id. A
// source that declared no ids of this kind leaves the offset unchanged.
func (s *idSpace) advance() {
	if s.seen && s.max+1 > s.offset {
		s.offset = s.max + 1
	}
	s.max = 0
	s.seen = false
}

// remapper holds the three identifier spaces carried across sources.
type remapper struct {
	stateMachines idSpace
	actionSets    idSpace
	eventSets     idSpace
}

func newRemapper() *remapper {
	return &remapper{
		stateMachines: idSpace{name: "state machine"},
		actionSets:    idSpace{name: "action set"},
		eventSets:     idSpace{name: "event set"},
	}
}

// offsets returns the offsets in effect for the current source.
func (r *remapper) offsets() Offsets {
	return Offsets{
		StateMachine: r.stateMachines.offset,
		ActionSet:    r.actionSets.offset,
		EventSet:     r.eventSets.offset,
	}
}

func (r *remapper) advance() {
	r.stateMachines.advance()
	r.actionSets.advance()
	r.eventSets.advance()
}
