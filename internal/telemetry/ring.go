package telemetry

import "sync"

// Ring is a bounded FIFO store of recent events.
type Ring struct {
	mu     sync.RWMutex
	events []Event
	cap    int
}

// NewRing creates a ring with the given capacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Ring{cap: capacity}
}

// Add appends an event, evicting the oldest when full.
func (r *Ring) Add(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if len(r.events) > r.cap {
		r.events = r.events[len(r.events)-r.cap:]
	}
}

// Recent returns up to limit most recent events, newest last. limit <= 0
// returns everything retained.
func (r *Ring) Recent(limit int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, n)
	copy(out, r.events[len(r.events)-n:])
	return out
}

// Len returns the number of retained events.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}
