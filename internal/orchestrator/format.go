package orchestrator

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TimelineFile is the on-disk authoring format of a timeline.
type TimelineFile struct {
	Version  int        `yaml:"version" json:"version"`
	ID       string     `yaml:"id" json:"id"`
	Duration float64    `yaml:"duration" json:"duration"`
	Nodes    []NodeSpec `yaml:"nodes" json:"nodes"`
	Clips    []ClipSpec `yaml:"clips" json:"clips"`
}

// NodeSpec is a one-shot action at a time offset.
type NodeSpec struct {
	At        float64 `yaml:"at" json:"at"`
	ActionRef `yaml:",inline"`
}

// ClipSpec is a repeating action window.
type ClipSpec struct {
	Start    float64    `yaml:"start" json:"start"`
	Ticks    int        `yaml:"ticks" json:"ticks"`
	Interval float64    `yaml:"interval" json:"interval"`
	OnStart  *ActionRef `yaml:"on_start" json:"on_start"`
	OnTick   *ActionRef `yaml:"on_tick" json:"on_tick"`
	OnStop   *ActionRef `yaml:"on_stop" json:"on_stop"`
}

// ActionRef names an action and its parameters.
type ActionRef struct {
	Action string                 `yaml:"action" json:"action"`
	Params map[string]interface{} `yaml:"params" json:"params"`
}

// IsTimelineFile reports whether path has a timeline file extension.
func IsTimelineFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// DecodeTimelineFile decodes data as YAML or JSON depending on the
// extension of name.
func DecodeTimelineFile(name string, data []byte) (*TimelineFile, error) {
	var tf TimelineFile
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		if err := json.Unmarshal(data, &tf); err != nil {
			return nil, fmt.Errorf("failed to parse timeline JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &tf); err != nil {
			return nil, fmt.Errorf("failed to parse timeline YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported timeline file extension: %s", filepath.Ext(name))
	}

	if tf.Version != 1 {
		return nil, fmt.Errorf("unsupported timeline version: %d", tf.Version)
	}
	return &tf, nil
}

// Validate checks the structural rules of a timeline file.
func (tf *TimelineFile) Validate() error {
	if tf.ID == "" {
		return fmt.Errorf("id is required")
	}
	if tf.Duration < 0 {
		return fmt.Errorf("duration must be >= 0")
	}
	for i, n := range tf.Nodes {
		if n.At < 0 || n.At > tf.Duration {
			return fmt.Errorf("node[%d]: at %v outside [0, %v]", i, n.At, tf.Duration)
		}
		if n.Action == "" {
			return fmt.Errorf("node[%d]: action is required", i)
		}
	}
	for i, c := range tf.Clips {
		if c.Start < 0 || c.Start > tf.Duration {
			return fmt.Errorf("clip[%d]: start %v outside [0, %v]", i, c.Start, tf.Duration)
		}
		if c.Ticks < 0 {
			return fmt.Errorf("clip[%d]: ticks must be >= 0", i)
		}
		if c.Ticks > 0 && c.Interval <= 0 {
			return fmt.Errorf("clip[%d]: interval must be > 0", i)
		}
		for _, h := range c.handlers() {
			if h.ref != nil && h.ref.Action == "" {
				return fmt.Errorf("clip[%d]: %s action is required", i, h.name)
			}
		}
	}
	return nil
}

type clipHandlerRef struct {
	name string
	ref  *ActionRef
}

func (c ClipSpec) handlers() []clipHandlerRef {
	return []clipHandlerRef{
		{"on_start", c.OnStart},
		{"on_tick", c.OnTick},
		{"on_stop", c.OnStop},
	}
}
