package engine

import (
	"sync"

	"github.com/starford/lattice/internal/cache"
)

// Ticket identifies one request issued through a Selection.
type Ticket struct {
	Key cache.Key
	seq uint64
}

// Selection tracks the key currently of interest to a caller (the note a
// user is looking at) so that responses to superseded requests are dropped
// instead of applied.
type Selection struct {
	mu      sync.Mutex
	seq     uint64
	current Ticket
}

// Begin makes key the current selection and returns the ticket a response
// must present to be committed.
func (s *Selection) Begin(key cache.Key) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.current = Ticket{Key: key, seq: s.seq}
	return s.current
}

// Current returns the key currently of interest.
func (s *Selection) Current() cache.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Key
}

// Commit runs apply only when t is still the current ticket and reports
// whether it did. apply runs under the selection lock.
func (s *Selection) Commit(t Ticket, apply func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t != s.current || t.seq == 0 {
		return false
	}
	apply()
	return true
}
