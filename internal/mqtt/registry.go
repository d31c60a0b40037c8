package mqtt

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrDeviceNotRegistered is returned for a logical id the registry does not
// hold.
var ErrDeviceNotRegistered = errors.New("device not registered")

// RegisteredDevice is one device as announced by its controller.
type RegisteredDevice struct {
	LogicalID     string   `json:"logical_id"`
	ControllerID  string   `json:"controller_id"`
	Type          string   `json:"type"`
	CommandTopic  string   `json:"command_topic,omitempty"`
	OutputSignals []string `json:"outputs,omitempty"`

	generation uint64
}

func (d *RegisteredDevice) clone() *RegisteredDevice {
	cp := *d
	cp.OutputSignals = slices.Clone(d.OutputSignals)
	return &cp
}

// DeviceRegistry maps logical device ids to their command topics. Every
// registration gets a new generation so handles taken before a re-register
// or unregister can tell they are stale.
type DeviceRegistry struct {
	mu      sync.RWMutex
	devices map[string]*RegisteredDevice
	nextGen uint64
}

// NewDeviceRegistry creates an empty registry.
func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{devices: make(map[string]*RegisteredDevice)}
}

// Register adds or replaces a device.
func (r *DeviceRegistry) Register(dev *RegisteredDevice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(dev)
}

func (r *DeviceRegistry) put(dev *RegisteredDevice) {
	r.nextGen++
	cp := dev.clone()
	cp.generation = r.nextGen
	r.devices[cp.LogicalID] = cp
}

// RegisterFromPayload registers every device in payload under its
// controller.
func (r *DeviceRegistry) RegisterFromPayload(payload *RegistrationPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dev := range payload.Devices {
		r.put(&RegisteredDevice{
			LogicalID:     dev.LogicalID,
			ControllerID:  payload.Controller.ID,
			Type:          dev.Type,
			CommandTopic:  dev.Topics.Subscribe,
			OutputSignals: dev.Signals.Outputs,
		})
	}
}

// Unregister removes a device.
func (r *DeviceRegistry) Unregister(logicalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, logicalID)
}

// UnregisterController removes every device of a controller and returns
// their sorted logical ids.
func (r *DeviceRegistry) UnregisterController(controllerID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, dev := range r.devices {
		if dev.ControllerID == controllerID {
			removed = append(removed, id)
			delete(r.devices, id)
		}
	}
	slices.Sort(removed)
	return removed
}

// Get returns a copy of a device, or nil.
func (r *DeviceRegistry) Get(logicalID string) *RegisteredDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if dev, ok := r.devices[logicalID]; ok {
		return dev.clone()
	}
	return nil
}

// Exists reports whether the device is registered.
func (r *DeviceRegistry) Exists(logicalID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.devices[logicalID]
	return ok
}

// GetCommandTopic returns the command topic of a device, or "".
func (r *DeviceRegistry) GetCommandTopic(logicalID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if dev, ok := r.devices[logicalID]; ok {
		return dev.CommandTopic
	}
	return ""
}

// ValidateCommand checks that a device is registered, has a command topic
// and accepts signal.
func (r *DeviceRegistry) ValidateCommand(logicalID, signal string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.devices[logicalID]
	switch {
	case !ok:
		return fmt.Errorf("%w: %s", ErrDeviceNotRegistered, logicalID)
	case dev.CommandTopic == "":
		return fmt.Errorf("device %s has no command topic", logicalID)
	case !slices.Contains(dev.OutputSignals, signal):
		return fmt.Errorf("device %s does not support output signal: %s", logicalID, signal)
	}
	return nil
}

// All returns copies of every device sorted by logical id.
func (r *DeviceRegistry) All() []*RegisteredDevice {
	r.mu.RLock()
	out := make([]*RegisteredDevice, 0, len(r.devices))
	for _, dev := range r.devices {
		out = append(out, dev.clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *RegisteredDevice) int {
		return cmp.Compare(a.LogicalID, b.LogicalID)
	})
	return out
}

// DeviceHandle is a weak reference to one registration of a device. It
// holds only the id and generation, never the device itself.
type DeviceHandle struct {
	registry   *DeviceRegistry
	logicalID  string
	generation uint64
}

// Subject returns a handle to the current registration of logicalID, or an
// error if the device is not registered.
func (r *DeviceRegistry) Subject(logicalID string) (*DeviceHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.devices[logicalID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotRegistered, logicalID)
	}
	return &DeviceHandle{registry: r, logicalID: logicalID, generation: dev.generation}, nil
}

// LogicalID returns the device id the handle refers to.
func (h *DeviceHandle) LogicalID() string { return h.logicalID }

// Alive reports whether the registration the handle was taken from is
// still current.
func (h *DeviceHandle) Alive() bool {
	h.registry.mu.RLock()
	defer h.registry.mu.RUnlock()
	dev, ok := h.registry.devices[h.logicalID]
	return ok && dev.generation == h.generation
}
