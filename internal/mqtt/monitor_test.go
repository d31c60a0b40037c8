package mqtt

import (
	"testing"
	"time"

	"github.com/AaronLay10/SentientTimeline/internal/events"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMonitor() (*Monitor, *DeviceRegistry, *fakeClock) {
	reg := NewDeviceRegistry()
	m := NewMonitor(reg, 2.0)
	clk := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	m.now = clk.now
	return m, reg, clk
}

func countEvents(name string) int {
	n := 0
	for _, e := range events.Snapshot() {
		if e.Name == name {
			n++
		}
	}
	return n
}

func TestMonitor_HandleRegistration(t *testing.T) {
	events.Clear()
	m, reg, _ := newTestMonitor()

	m.HandleRegistration(doorPayload("ctrl-001"))

	if !reg.Exists("crypt_door") || !reg.Exists("torch") {
		t.Error("expected devices registered")
	}
	state := m.GetControllerState("ctrl-001")
	if state == nil || !state.Connected {
		t.Fatal("expected connected controller state")
	}
	if len(state.Devices) != 2 {
		t.Errorf("expected 2 devices, got %d", len(state.Devices))
	}
	if got := countEvents("device.connected"); got != 2 {
		t.Errorf("expected 2 device.connected events, got %d", got)
	}
}

func TestMonitor_ReRegistrationDropsRemovedDevices(t *testing.T) {
	m, reg, _ := newTestMonitor()
	m.HandleRegistration(doorPayload("ctrl-001"))

	p := doorPayload("ctrl-001")
	p.Devices = p.Devices[:1]
	m.HandleRegistration(p)

	if reg.Exists("torch") {
		t.Error("expected dropped device to be unregistered")
	}
	if !reg.Exists("crypt_door") {
		t.Error("expected kept device to remain registered")
	}
}

func TestMonitor_HeartbeatTimeout(t *testing.T) {
	events.Clear()
	m, reg, clk := newTestMonitor()
	m.HandleRegistration(doorPayload("ctrl-001"))
	handle, _ := reg.Subject("crypt_door")

	clk.advance(8 * time.Second)
	if !m.Heartbeat("ctrl-001") {
		t.Error("expected heartbeat to be accepted")
	}
	clk.advance(8 * time.Second)
	m.checkHealth()
	if !handle.Alive() {
		t.Fatal("expected device alive within tolerance")
	}

	clk.advance(3 * time.Second)
	m.checkHealth()

	if handle.Alive() {
		t.Error("expected handle to die after heartbeat timeout")
	}
	if reg.Exists("crypt_door") {
		t.Error("expected device to be unregistered")
	}
	if state := m.GetControllerState("ctrl-001"); state.Connected {
		t.Error("expected controller to be disconnected")
	}
	if got := countEvents("device.disconnected"); got != 2 {
		t.Errorf("expected 2 device.disconnected events, got %d", got)
	}
	if len(m.ConnectedControllers()) != 0 {
		t.Error("expected no connected controllers")
	}

	// A disconnected controller must register again before heartbeats count.
	if m.Heartbeat("ctrl-001") {
		t.Error("expected heartbeat from disconnected controller to be ignored")
	}
}

func TestMonitor_ZeroHeartbeatNeverTimesOut(t *testing.T) {
	m, reg, clk := newTestMonitor()
	p := doorPayload("ctrl-001")
	p.Controller.HeartbeatSec = 0
	m.HandleRegistration(p)

	clk.advance(time.Hour)
	m.checkHealth()
	if !reg.Exists("crypt_door") {
		t.Error("expected device without heartbeat to stay registered")
	}
}

func TestMonitor_StartStop(t *testing.T) {
	m, _, _ := newTestMonitor()
	m.Start(10 * time.Millisecond)
	time.Sleep(25 * time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestControllerStateTimeout(t *testing.T) {
	s := &ControllerState{HeartbeatSec: 5}
	if got := s.Timeout(2); got != 10*time.Second {
		t.Errorf("expected 10s, got %v", got)
	}
	if got := s.Timeout(1.5); got != 7500*time.Millisecond {
		t.Errorf("expected 7.5s, got %v", got)
	}
	s.HeartbeatSec = 0
	if got := s.Timeout(2); got != 0 {
		t.Errorf("expected no timeout, got %v", got)
	}
}
