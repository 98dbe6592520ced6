package stats

import (
	"sync"
	"time"

	"github.com/viant/movegate/internal/clock"
)

// Delta represents an incremental counter change. Fields are signed so that
// Pending can move both ways.
type Delta struct {
	Submitted int
	Received  int
	Approved  int
	Denied    int
	Cancelled int
	Rejected  int
	Moves     int
	Pending   int
}

// Counters is a point-in-time copy of the aggregated values.
type Counters struct {
	ParticipantID string    `json:"participantId"`
	StartedAt     time.Time `json:"startedAt"`

	Submitted int `json:"submitted"`
	Received  int `json:"received"`
	Approved  int `json:"approved"`
	Denied    int `json:"denied"`
	Cancelled int `json:"cancelled"`
	Rejected  int `json:"rejected"`
	Moves     int `json:"moves"`
	Pending   int `json:"pending"`
}

// Stats keeps counters for one participant. It is safe for concurrent use.
type Stats struct {
	mu       sync.Mutex
	counters Counters
	onChange func(Counters)
}

// New creates counters for participantID.
func New(participantID string) *Stats {
	return &Stats{counters: Counters{ParticipantID: participantID, StartedAt: clock.Now()}}
}

// Update applies d. The onChange callback, if any, receives a copy outside
// the critical section.
func (s *Stats) Update(d Delta) {
	if s == nil {
		return
	}
	s.mu.Lock()
	c := &s.counters
	c.Submitted += d.Submitted
	c.Received += d.Received
	c.Approved += d.Approved
	c.Denied += d.Denied
	c.Cancelled += d.Cancelled
	c.Rejected += d.Rejected
	c.Moves += d.Moves
	c.Pending += d.Pending
	if c.Pending < 0 {
		c.Pending = 0
	}
	snapshot := *c
	cb := s.onChange
	s.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy for read-only inspection.
func (s *Stats) Snapshot() Counters {
	if s == nil {
		return Counters{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// OnChange registers the callback invoked after every Update; nil disables it.
func (s *Stats) OnChange(cb func(Counters)) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.onChange = cb
	s.mu.Unlock()
}
