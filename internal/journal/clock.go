package journal

import "sync/atomic"

// sequence hands out the seq numbers shared by both tables. It resumes
// from the highest seq already in the file.
type sequence struct {
	last atomic.Int64
}

func resumeSequence(last int64) *sequence {
	s := &sequence{}
	s.last.Store(last)
	return s
}

// next reserves and returns the next seq.
func (s *sequence) next() int64 {
	return s.last.Add(1)
}

// current returns the most recently reserved seq, 0 if none.
func (s *sequence) current() int64 {
	return s.last.Load()
}
