package events

import (
	"encoding/json"
	"fmt"
	"time"
)

var buffer = NewRingBuffer(256)

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Emit records an event in the ring buffer, fans it out to subscribers and
// queues it for the configured store. Unknown event names are rejected.
func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	return EmitSession("", level, name, msg, fields)
}

// EmitSession is Emit with a session id attached to the stored row. The
// scheduler uses the timeline instance id as session.
func EmitSession(sessionID, level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	broadcast(e)
	persist(ts, e, sessionID)

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return b, nil
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}

// TotalCount returns the number of events emitted since startup.
func TotalCount() uint64 {
	return buffer.Total()
}
