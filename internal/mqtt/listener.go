package mqtt

import (
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/SentientTimeline/internal/events"
)

const (
	// RegistrationTopic receives controller registration payloads.
	RegistrationTopic = "sentient/registration"
	// HeartbeatTopic receives controller heartbeats.
	HeartbeatTopic = "sentient/heartbeat"
)

// Subscriber is the subset of Client the listener needs.
type Subscriber interface {
	Subscribe(topic string, handler paho.MessageHandler) error
}

// Listener routes registration and heartbeat messages to a Monitor.
type Listener struct {
	sub     Subscriber
	monitor *Monitor
}

// NewListener creates a listener feeding monitor.
func NewListener(sub Subscriber, monitor *Monitor) *Listener {
	return &Listener{sub: sub, monitor: monitor}
}

// Subscribe registers the handlers with the broker. Safe to call again
// after a reconnect.
func (l *Listener) Subscribe() error {
	if err := l.sub.Subscribe(RegistrationTopic, l.handleRegistration); err != nil {
		return err
	}
	return l.sub.Subscribe(HeartbeatTopic, l.handleHeartbeat)
}

func (l *Listener) handleRegistration(_ paho.Client, msg paho.Message) {
	payload, err := ParseRegistration(msg.Payload())
	if err != nil {
		events.Emit("error", "device.error", "registration rejected", map[string]interface{}{
			"topic": msg.Topic(),
			"error": err.Error(),
		})
		return
	}
	l.monitor.HandleRegistration(payload)
}

func (l *Listener) handleHeartbeat(_ paho.Client, msg paho.Message) {
	hb, err := ParseHeartbeat(msg.Payload())
	if err != nil {
		events.Emit("error", "device.error", "heartbeat rejected", map[string]interface{}{
			"topic": msg.Topic(),
			"error": err.Error(),
		})
		return
	}
	l.monitor.Heartbeat(hb.ControllerID)
}
