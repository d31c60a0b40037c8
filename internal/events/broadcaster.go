package events

import (
	"sync"
	"sync/atomic"
)

const subscriberBuffer = 64

// Subscriber receives live events. The channel is closed on Unsubscribe or
// CloseAllSubscribers.
type Subscriber chan Event

type hub struct {
	mu      sync.RWMutex
	subs    map[Subscriber]struct{}
	dropped atomic.Uint64
}

var live = &hub{subs: make(map[Subscriber]struct{})}

// Subscribe registers a buffered channel for live events.
func Subscribe() Subscriber {
	ch := make(Subscriber, subscriberBuffer)
	live.mu.Lock()
	live.subs[ch] = struct{}{}
	live.mu.Unlock()
	return ch
}

// Unsubscribe removes sub and closes it. It is a no-op for a channel that is
// already gone.
func Unsubscribe(sub Subscriber) {
	live.mu.Lock()
	defer live.mu.Unlock()
	if _, ok := live.subs[sub]; ok {
		delete(live.subs, sub)
		close(sub)
	}
}

// CloseAllSubscribers closes every subscriber so websocket writers exit.
func CloseAllSubscribers() {
	live.mu.Lock()
	defer live.mu.Unlock()
	for sub := range live.subs {
		close(sub)
	}
	clear(live.subs)
}

// broadcast never blocks. A subscriber with a full buffer misses the event.
func broadcast(e Event) {
	live.mu.RLock()
	defer live.mu.RUnlock()
	for sub := range live.subs {
		select {
		case sub <- e:
		default:
			live.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func SubscriberCount() int {
	live.mu.RLock()
	defer live.mu.RUnlock()
	return len(live.subs)
}

// DroppedCount returns how many deliveries were skipped because a
// subscriber was not keeping up.
func DroppedCount() uint64 { return live.dropped.Load() }

// RecentEvents returns up to the last n buffered events, oldest first. n <= 0
// returns everything buffered.
func RecentEvents(n int) []Event {
	return buffer.Last(n)
}
