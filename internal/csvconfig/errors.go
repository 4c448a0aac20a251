package csvconfig

import (
	"errors"
	"fmt"
)

// ErrMalformed matches every *ParseError via errors.Is.
var ErrMalformed = errors.New("malformed configuration line")

// ParseError reports the line that failed ingestion.
type ParseError struct {
	Source  string
	Line    int    // 1-based
	Section string // empty if the section token itself was bad
	Field   int    // 1-based field index after the section token; 0 for line-level errors
	Text    string // the raw line
	Err     error
}

func (e *ParseError) Error() string {
	switch {
	case e.Section == "":
		return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Err)
	case e.Field == 0:
		return fmt.Sprintf("%s:%d: %s: %v", e.Source, e.Line, e.Section, e.Err)
	default:
		return fmt.Sprintf("%s:%d: %s field %d: %v", e.Source, e.Line, e.Section, e.Field, e.Err)
	}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is makes every ParseError match ErrMalformed.
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformed
}
