package events

import "sync"

// RingBuffer keeps the most recent events in memory for /events and for
// replay to new websocket clients.
type RingBuffer struct {
	mu     sync.RWMutex
	size   int
	events []Event
	index  int
	full   bool
	total  uint64
}

// NewRingBuffer returns a buffer holding the last size events.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		size:   size,
		events: make([]Event, size),
	}
}

// Add appends e, overwriting the oldest event once full.
func (rb *RingBuffer) Add(e Event) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.events[rb.index] = e
	rb.index = (rb.index + 1) % rb.size
	if rb.index == 0 {
		rb.full = true
	}
	rb.total++
}

// Snapshot returns every buffered event, oldest first.
func (rb *RingBuffer) Snapshot() []Event {
	return rb.Last(0)
}

// Last returns up to the n most recent events, oldest first. n <= 0 means
// all of them.
func (rb *RingBuffer) Last(n int) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	count := rb.index
	if rb.full {
		count = rb.size
	}
	if n <= 0 || n > count {
		n = count
	}
	out := make([]Event, n)
	start := rb.index - n
	for i := range out {
		out[i] = rb.events[(start+i+rb.size)%rb.size]
	}
	return out
}

// Clear drops buffered events. The total count is kept.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.events = make([]Event, rb.size)
	rb.index = 0
	rb.full = false
}

// Total returns the number of events added since startup.
func (rb *RingBuffer) Total() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.total
}
