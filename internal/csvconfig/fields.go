package csvconfig

import (
	"fmt"
	"strconv"

	"github.com/roach88/harpi/internal/ir"
)

// fieldCursor walks the fields of one line after the section token.
type fieldCursor struct {
	fields []string
	pos    int // index of the next field
}

// fieldError carries the 1-based index of the failing field.
type fieldError struct {
	field int
	err   error
}

func (e *fieldError) Error() string { return e.err.Error() }
func (e *fieldError) Unwrap() error { return e.err }

func (c *fieldCursor) next() (string, error) {
	if c.pos >= len(c.fields) {
		return "", &fieldError{field: c.pos + 1, err: fmt.Errorf("missing field")}
	}
	s := c.fields[c.pos]
	c.pos++
	return s, nil
}

func (c *fieldCursor) fail(err error) error {
	return &fieldError{field: c.pos, err: err}
}

// done rejects fields left over after the section's layout was consumed.
func (c *fieldCursor) done() error {
	if c.pos < len(c.fields) {
		return &fieldError{field: c.pos + 1, err: fmt.Errorf("unexpected field %q", c.fields[c.pos])}
	}
	return nil
}

// uint16Dec reads an unsigned 16-bit decimal.
func (c *fieldCursor) uint16Dec() (uint16, error) {
	s, err := c.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, c.fail(fmt.Errorf("invalid id %q: want decimal 0..65535", s))
	}
	return uint16(v), nil
}

// uint8Dec reads an unsigned 8-bit decimal.
func (c *fieldCursor) uint8Dec() (uint8, error) {
	s, err := c.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, c.fail(fmt.Errorf("invalid value %q: want decimal 0..255", s))
	}
	return uint8(v), nil
}

// hexByte reads one or two hex digits.
func (c *fieldCursor) hexByte() (byte, error) {
	s, err := c.next()
	if err != nil {
		return 0, err
	}
	if len(s) == 0 || len(s) > 2 {
		return 0, c.fail(fmt.Errorf("invalid hex byte %q: want 1-2 hex digits", s))
	}
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, c.fail(fmt.Errorf("invalid hex byte %q: want 1-2 hex digits", s))
	}
	return byte(v), nil
}

// filterOp reads a single-character filter operator.
func (c *fieldCursor) filterOp() (ir.FilterOp, error) {
	s, err := c.next()
	if err != nil {
		return 0, err
	}
	if len(s) != 1 || !ir.FilterOp(s[0]).Valid() {
		return 0, c.fail(fmt.Errorf("invalid filter operator %q: want one of x e n < >", s))
	}
	return ir.FilterOp(s[0]), nil
}

// loadKind reads a load type string.
func (c *fieldCursor) loadKind() (ir.LoadKind, error) {
	s, err := c.next()
	if err != nil {
		return 0, err
	}
	k, ok := ir.ParseLoadKind(s)
	if !ok {
		return 0, c.fail(fmt.Errorf("unknown load type %q", s))
	}
	return k, nil
}
