package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/AaronLay10/SentientTimeline/internal/events"
)

const commandQueueSize = 256

// ErrCommandQueueFull is returned when publishes are backing up faster than
// the broker accepts them.
var ErrCommandQueueFull = errors.New("device command queue full")

// ErrExecutorClosed is returned by Execute after Close.
var ErrExecutorClosed = errors.New("command executor closed")

// Publisher is the subset of Client the executor needs.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Command is the JSON body sent to a device command topic.
type Command struct {
	Signal  string                 `json:"signal"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

type outbound struct {
	deviceID string
	signal   string
	topic    string
	body     []byte
}

// CommandExecutor validates device commands against the registry and
// publishes them in order on its own goroutine, so a slow broker never
// holds up the caller. Publish failures are emitted as device.error.
type CommandExecutor struct {
	pub      Publisher
	registry *DeviceRegistry

	mu     sync.RWMutex
	closed bool
	queue  chan outbound
	done   chan struct{}
}

// NewCommandExecutor creates an executor and starts its publisher.
func NewCommandExecutor(pub Publisher, registry *DeviceRegistry) *CommandExecutor {
	e := &CommandExecutor{
		pub:      pub,
		registry: registry,
		queue:    make(chan outbound, commandQueueSize),
		done:     make(chan struct{}),
	}
	go e.run()
	return e
}

// Execute validates the command and queues it for deviceID. Only
// validation and queueing errors are returned.
func (e *CommandExecutor) Execute(deviceID, signal string, payload map[string]interface{}) error {
	if err := e.registry.ValidateCommand(deviceID, signal); err != nil {
		return err
	}
	body, err := json.Marshal(Command{Signal: signal, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode command for %s: %w", deviceID, err)
	}
	msg := outbound{
		deviceID: deviceID,
		signal:   signal,
		topic:    e.registry.GetCommandTopic(deviceID),
		body:     body,
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrExecutorClosed
	}
	select {
	case e.queue <- msg:
		return nil
	default:
		return fmt.Errorf("%w: dropping %s to %s", ErrCommandQueueFull, signal, deviceID)
	}
}

// Close publishes what is already queued and stops the executor.
func (e *CommandExecutor) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()
	<-e.done
}

func (e *CommandExecutor) run() {
	defer close(e.done)
	for msg := range e.queue {
		if err := e.pub.Publish(msg.topic, msg.body); err != nil {
			events.Emit("error", "device.error", "command publish failed", map[string]interface{}{
				"logical_id": msg.deviceID,
				"signal":     msg.signal,
				"topic":      msg.topic,
				"error":      err.Error(),
			})
		}
	}
}
