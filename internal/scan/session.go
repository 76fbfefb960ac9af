package scan

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// session accumulates the recognition results of one scan.
//
// Each page owns the slot at its index, so completion order never affects the
// result order. done is closed when the last outstanding page completes.
type session struct {
	id      string
	slots   []string
	present []bool
	pending atomic.Int64
	done    chan struct{}
}

func newSession(pages int) *session {
	s := &session{
		id:      uuid.NewString(),
		slots:   make([]string, pages),
		present: make([]bool, pages),
		done:    make(chan struct{}),
	}
	s.pending.Store(int64(pages))
	if pages == 0 {
		close(s.done)
	}
	return s
}

// complete records the outcome of page i. It must be called exactly once per page.
func (s *session) complete(i int, text string, ok bool) {
	if ok {
		s.slots[i] = text
		s.present[i] = true
	}
	if s.pending.Add(-1) == 0 {
		close(s.done)
	}
}

// texts returns the recognized texts in page order. Only valid after done is closed.
func (s *session) texts() []string {
	out := make([]string, 0, len(s.slots))
	for i, text := range s.slots {
		if s.present[i] {
			out = append(out, text)
		}
	}
	return out
}
