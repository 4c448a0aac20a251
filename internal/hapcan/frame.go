// Package hapcan models the logical HAPCAN frame exchanged with field devices.
//
// A logical frame is the 12-byte form of a HAPCAN message without the
// start, checksum and stop bytes:
//
//	byte 0     frame type bits 11..4
//	byte 1     frame type bits 3..0 (high nibble), flags (bit 0)
//	byte 2     module (node)
//	byte 3     group
//	byte 4..11 data D0..D7
//
// Packing a logical frame into a CAN identifier is the transport's job.
package hapcan

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// FrameLen is the length of a logical frame in bytes.
const FrameLen = 12

// DataLen is the number of data bytes carried by a frame.
const DataLen = 8

// Frame types used by the rule engine.
const (
	TypeStatusRequest uint16 = 0x109 // status request to a node
	TypeDirectControl uint16 = 0x10A // direct control of a module
	TypeRelayStatus   uint16 = 0x302 // relay module channel status
)

// Frame is one logical HAPCAN frame.
type Frame [FrameLen]byte

// Address identifies a node on the bus by module and group.
type Address struct {
	Node  uint8 `json:"node"`
	Group uint8 `json:"group"`
}

// New assembles a frame from its logical fields.
func New(frameType uint16, flags uint8, sender Address, data [DataLen]byte) Frame {
	var f Frame
	f[0] = byte(frameType >> 4)
	f[1] = byte(frameType<<4) | (flags & 0x01)
	f[2] = sender.Node
	f[3] = sender.Group
	copy(f[4:], data[:])
	return f
}

// Type returns the 12-bit frame type.
func (f Frame) Type() uint16 {
	return uint16(f[0])<<4 | uint16(f[1]>>4)
}

// Flags returns the flags bit.
func (f Frame) Flags() uint8 {
	return f[1] & 0x01
}

// Node returns the module byte.
func (f Frame) Node() uint8 {
	return f[2]
}

// Group returns the group byte.
func (f Frame) Group() uint8 {
	return f[3]
}

// Data returns data byte Di. It panics if i is outside 0..7.
func (f Frame) Data(i int) byte {
	return f[4+i]
}

// String renders the frame as 24 upper-case hex digits.
func (f Frame) String() string {
	return strings.ToUpper(hex.EncodeToString(f[:]))
}

// ParseHex parses 24 hex digits into a frame. Whitespace between digits
// is ignored.
func ParseHex(s string) (Frame, error) {
	var f Frame
	compact := strings.Join(strings.Fields(s), "")
	if len(compact) != 2*FrameLen {
		return f, fmt.Errorf("frame %q: want %d hex digits, got %d", s, 2*FrameLen, len(compact))
	}
	if _, err := hex.Decode(f[:], []byte(compact)); err != nil {
		return f, fmt.Errorf("frame %q: %w", s, err)
	}
	return f, nil
}

// MarshalText implements encoding.TextMarshaler so frames render as hex
// in JSON output.
func (f Frame) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Frame) UnmarshalText(text []byte) error {
	parsed, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
