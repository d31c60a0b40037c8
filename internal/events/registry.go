package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// timeline instances
	"timeline.started":        {},
	"timeline.stop_requested": {},
	"timeline.stopped":        {},
	"timeline.completed":      {},
	"timeline.timescale":      {},

	// timeline items
	"node.fired":   {},
	"clip.started": {},
	"clip.stopped": {},

	// catalog and schedules
	"catalog.loaded":     {},
	"catalog.error":      {},
	"schedule.triggered": {},
	"schedule.error":     {},

	// actions
	"action.error": {},

	// operator
	"operator.start":     {},
	"operator.stop":      {},
	"operator.stop_all":  {},
	"operator.timescale": {},

	// device
	"device.connected":    {},
	"device.disconnected": {},
	"device.error":        {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
