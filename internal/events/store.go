package events

import (
	"sync"
	"time"
)

// Store persists emitted events.
type Store interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error
}

const storeQueueSize = 1024

type pendingEvent struct {
	ts        time.Time
	e         Event
	sessionID string
}

// storeWriter drains events to a Store on its own goroutine so Emit never
// blocks the tick loop on I/O.
type storeWriter struct {
	store Store
	queue chan pendingEvent
	done  chan struct{}
}

var (
	writerMu      sync.Mutex
	writer        *storeWriter
	storeErrorLog sync.Once
)

// SetStore starts persisting events to store, replacing any previous store.
// A nil store stops persistence. The previous writer is drained first.
func SetStore(store Store) {
	writerMu.Lock()
	defer writerMu.Unlock()

	if writer != nil {
		close(writer.queue)
		<-writer.done
		writer = nil
	}
	if store == nil {
		return
	}

	w := &storeWriter{
		store: store,
		queue: make(chan pendingEvent, storeQueueSize),
		done:  make(chan struct{}),
	}
	go w.run()
	writer = w
}

// Flush drains pending writes and stops persistence.
func Flush() {
	SetStore(nil)
}

func (w *storeWriter) run() {
	defer close(w.done)
	for p := range w.queue {
		if err := w.store.Append(p.ts, p.e.Level, p.e.Name, p.e.Message, p.e.Fields, p.sessionID); err != nil {
			reportStoreError("event store append failed", err)
		}
	}
}

// persist queues e without blocking. A full queue drops the write.
func persist(ts time.Time, e Event, sessionID string) {
	writerMu.Lock()
	w := writer
	if w == nil {
		writerMu.Unlock()
		return
	}
	select {
	case w.queue <- pendingEvent{ts: ts, e: e, sessionID: sessionID}:
		writerMu.Unlock()
	default:
		writerMu.Unlock()
		reportStoreError("event store queue full", nil)
	}
}

// reportStoreError records a single system.error directly in the ring
// buffer. It never goes back through Emit, so a failing store cannot recurse.
func reportStoreError(msg string, err error) {
	storeErrorLog.Do(func() {
		fields := map[string]interface{}{}
		if err != nil {
			fields["error"] = err.Error()
		}
		errEvent := Event{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Level:     "error",
			Name:      "system.error",
			Message:   msg,
			Fields:    fields,
		}
		buffer.Add(errEvent)
		broadcast(errEvent)
	})
}
