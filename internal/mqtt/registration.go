package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
)

// RegistrationVersion is the only registration payload version accepted.
const RegistrationVersion = 1

// RegistrationPayload is published by a controller on RegistrationTopic
// when it boots. It replaces every device the controller registered before.
type RegistrationPayload struct {
	Version    int                  `json:"version"`
	Controller ControllerInfo       `json:"controller"`
	Devices    []DeviceRegistration `json:"devices"`
}

// ControllerInfo identifies the publishing controller. HeartbeatSec is the
// interval it promises to heartbeat at; zero disables the timeout.
type ControllerInfo struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Firmware     string `json:"firmware"`
	HeartbeatSec int    `json:"heartbeat_sec"`
}

// DeviceRegistration is one logical device behind a controller.
type DeviceRegistration struct {
	LogicalID string        `json:"logical_id"`
	Type      string        `json:"type"`
	Signals   DeviceSignals `json:"signals"`
	Topics    DeviceTopics  `json:"topics"`
}

// DeviceSignals lists the output signals a device accepts.
type DeviceSignals struct {
	Outputs []string `json:"outputs"`
}

// DeviceTopics holds the topic a device receives commands on.
type DeviceTopics struct {
	Subscribe string `json:"subscribe"`
}

// HeartbeatPayload is published on HeartbeatTopic.
type HeartbeatPayload struct {
	ControllerID string `json:"controller_id"`
}

// Validate checks the payload. Device ids must be unique and a device
// that accepts output signals needs a command topic.
func (p *RegistrationPayload) Validate() error {
	if p.Version != RegistrationVersion {
		return fmt.Errorf("unsupported registration version: %d", p.Version)
	}
	if p.Controller.ID == "" {
		return errors.New("controller.id is required")
	}
	if p.Controller.HeartbeatSec < 0 {
		return errors.New("controller.heartbeat_sec must not be negative")
	}

	seen := make(map[string]struct{}, len(p.Devices))
	for i, dev := range p.Devices {
		switch {
		case dev.LogicalID == "":
			return fmt.Errorf("devices[%d]: logical_id is required", i)
		case len(dev.Signals.Outputs) > 0 && dev.Topics.Subscribe == "":
			return fmt.Errorf("devices[%d]: %s has outputs but no topics.subscribe", i, dev.LogicalID)
		}
		if _, dup := seen[dev.LogicalID]; dup {
			return fmt.Errorf("devices[%d]: duplicate logical_id %s", i, dev.LogicalID)
		}
		seen[dev.LogicalID] = struct{}{}
	}
	return nil
}

// ParseRegistration decodes and validates a registration message.
func ParseRegistration(data []byte) (*RegistrationPayload, error) {
	p := new(RegistrationPayload)
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("invalid registration JSON: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ParseHeartbeat decodes a heartbeat message.
func ParseHeartbeat(data []byte) (*HeartbeatPayload, error) {
	hb := new(HeartbeatPayload)
	if err := json.Unmarshal(data, hb); err != nil {
		return nil, fmt.Errorf("invalid heartbeat JSON: %w", err)
	}
	if hb.ControllerID == "" {
		return nil, errors.New("controller_id is required")
	}
	return hb, nil
}
