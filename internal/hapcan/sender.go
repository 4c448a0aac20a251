package hapcan

// Sender hands frames to the bus. Implementations hold their own lock
// while sending, so callers must not hold a rule or status lock across
// Send.
type Sender interface {
	Send(Frame) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(Frame) error

// Send calls fn(f).
func (fn SenderFunc) Send(f Frame) error {
	return fn(f)
}
