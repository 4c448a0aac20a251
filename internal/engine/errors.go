package engine

import "errors"

// ErrStopped is returned by Run when the event queue was closed.
var ErrStopped = errors.New("engine stopped")
