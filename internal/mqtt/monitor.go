package mqtt

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/AaronLay10/SentientTimeline/internal/events"
)

// ControllerState is the last known health of a controller.
type ControllerState struct {
	ControllerID string
	LastSeen     time.Time
	HeartbeatSec int
	Devices      []string
	Connected    bool
}

// Timeout is how long the controller may stay silent before it is dropped.
// Zero means never.
func (s *ControllerState) Timeout(tolerance float64) time.Duration {
	if s.HeartbeatSec <= 0 {
		return 0
	}
	return time.Duration(float64(s.HeartbeatSec) * tolerance * float64(time.Second))
}

// Monitor owns controller liveness. When a controller misses its heartbeat
// its devices leave the registry, so every timeline bound to one of them
// stops on the next tick.
type Monitor struct {
	mu          sync.RWMutex
	registry    *DeviceRegistry
	controllers map[string]*ControllerState
	tolerance   float64
	now         func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor over registry. tolerance multiplies each
// controller's heartbeat interval; values <= 1 fall back to 2.
func NewMonitor(registry *DeviceRegistry, tolerance float64) *Monitor {
	if tolerance <= 1 {
		tolerance = 2
	}
	return &Monitor{
		registry:    registry,
		controllers: make(map[string]*ControllerState),
		tolerance:   tolerance,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
}

// HandleRegistration replaces the devices of the publishing controller and
// marks it connected.
func (m *Monitor) HandleRegistration(payload *RegistrationPayload) {
	ctrlID := payload.Controller.ID
	ids := make([]string, len(payload.Devices))
	for i, dev := range payload.Devices {
		ids[i] = dev.LogicalID
	}

	m.mu.Lock()
	prev, known := m.controllers[ctrlID]
	reconnect := known && !prev.Connected
	if known {
		m.registry.UnregisterController(ctrlID)
	}
	m.registry.RegisterFromPayload(payload)
	m.controllers[ctrlID] = &ControllerState{
		ControllerID: ctrlID,
		LastSeen:     m.now(),
		HeartbeatSec: payload.Controller.HeartbeatSec,
		Devices:      ids,
		Connected:    true,
	}
	m.mu.Unlock()

	for _, dev := range payload.Devices {
		events.Emit("info", "device.connected", "", map[string]interface{}{
			"controller_id": ctrlID,
			"logical_id":    dev.LogicalID,
			"type":          dev.Type,
			"reconnect":     reconnect,
		})
	}
}

// Heartbeat refreshes a connected controller and reports whether it was
// known. A controller that timed out must register again.
func (m *Monitor) Heartbeat(controllerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.controllers[controllerID]
	if ok && state.Connected {
		state.LastSeen = m.now()
		return true
	}
	return false
}

// Start runs the health check every interval until Stop.
func (m *Monitor) Start(interval time.Duration) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.checkHealth()
			}
		}
	}()
}

// Stop ends the health check loop. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Monitor) checkHealth() {
	for _, state := range m.expire() {
		timeout := state.Timeout(m.tolerance)
		for _, id := range state.Devices {
			events.Emit("warning", "device.disconnected", "heartbeat timeout", map[string]interface{}{
				"controller_id": state.ControllerID,
				"logical_id":    id,
				"last_seen":     state.LastSeen.Format(time.RFC3339),
				"timeout_sec":   timeout.Seconds(),
			})
		}
	}
}

// expire marks silent controllers disconnected, drops their devices and
// returns copies of their final state.
func (m *Monitor) expire() []ControllerState {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []ControllerState
	for id, state := range m.controllers {
		timeout := state.Timeout(m.tolerance)
		if !state.Connected || timeout == 0 || now.Sub(state.LastSeen) <= timeout {
			continue
		}
		state.Connected = false
		m.registry.UnregisterController(id)
		out = append(out, *state)
	}
	slices.SortFunc(out, func(a, b ControllerState) int {
		return cmp.Compare(a.ControllerID, b.ControllerID)
	})
	return out
}

// GetControllerState returns a copy of a controller's state, or nil.
func (m *Monitor) GetControllerState(controllerID string) *ControllerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.controllers[controllerID]
	if !ok {
		return nil
	}
	cp := *state
	cp.Devices = slices.Clone(state.Devices)
	return &cp
}

// ConnectedControllers returns the sorted ids of connected controllers.
func (m *Monitor) ConnectedControllers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, state := range m.controllers {
		if state.Connected {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
