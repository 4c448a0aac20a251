package rules

import (
	"errors"
	"fmt"

	"github.com/roach88/harpi/internal/ir"
)

// CapacityError reports a record that did not fit the collection sized
// for it in the counting phase. It indicates an internal inconsistency,
// not bad configuration.
type CapacityError struct {
	Kind     ir.Kind
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("rule store: %s collection full at %d records", e.Kind, e.Capacity)
}

// IsCapacityError reports whether err is or wraps a *CapacityError.
func IsCapacityError(err error) bool {
	var ce *CapacityError
	return errors.As(err, &ce)
}
