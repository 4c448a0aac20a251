package testutil

import (
	"sync"

	"github.com/roach88/harpi/internal/hapcan"
)

// RecordingTransport captures every frame sent to it.
//
// Fail makes Send return err for frames for which it reports true; those
// frames are still recorded.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingTransport struct {
	mu     sync.Mutex
	frames []hapcan.Frame
	fail   func(hapcan.Frame) error
}

// NewRecordingTransport creates a transport that accepts every frame.
func NewRecordingTransport() *RecordingTransport {
	return &RecordingTransport{}
}

// Send records f.
func (r *RecordingTransport) Send(f hapcan.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	if r.fail != nil {
		return r.fail(f)
	}
	return nil
}

// FailWith installs a failure function; nil restores success.
func (r *RecordingTransport) FailWith(fn func(hapcan.Frame) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fn
}

// Frames returns a copy of the recorded frames in send order.
func (r *RecordingTransport) Frames() []hapcan.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]hapcan.Frame(nil), r.frames...)
}

// Reset forgets the recorded frames.
func (r *RecordingTransport) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}
