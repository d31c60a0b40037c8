package orchestrator

import (
	"fmt"
	"os"

	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

// LoadDefinitionFile reads, validates and binds a timeline file.
func LoadDefinitionFile(path string, binder ActionBinder) (*timeline.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timeline file: %w", err)
	}
	def, err := ParseDefinition(path, data, binder)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// ParseDefinition decodes data (format chosen by the extension of name)
// into a bound definition.
func ParseDefinition(name string, data []byte, binder ActionBinder) (*timeline.Definition, error) {
	tf, err := DecodeTimelineFile(name, data)
	if err != nil {
		return nil, err
	}
	return BuildDefinition(tf, binder)
}

// BuildDefinition validates tf and binds its actions.
func BuildDefinition(tf *TimelineFile, binder ActionBinder) (*timeline.Definition, error) {
	if err := tf.Validate(); err != nil {
		return nil, err
	}

	nodes := make([]timeline.Node, 0, len(tf.Nodes))
	for i, n := range tf.Nodes {
		fn, err := binder.Bind(n.ActionRef)
		if err != nil {
			return nil, fmt.Errorf("node[%d]: %w", i, err)
		}
		nodes = append(nodes, timeline.NodeFunc{At: n.At, Fn: fn})
	}

	clips := make([]timeline.Clip, 0, len(tf.Clips))
	for i, c := range tf.Clips {
		var funcs timeline.ClipFuncs
		targets := []*func(*timeline.Context){&funcs.Start, &funcs.Tick, &funcs.Stop}
		for j, h := range c.handlers() {
			if h.ref == nil {
				continue
			}
			fn, err := binder.Bind(*h.ref)
			if err != nil {
				return nil, fmt.Errorf("clip[%d]: %s: %w", i, h.name, err)
			}
			*targets[j] = fn
		}
		clips = append(clips, timeline.Clip{
			StartTime:    c.Start,
			TotalTicks:   c.Ticks,
			TickInterval: c.Interval,
			Handler:      funcs,
		})
	}

	return timeline.NewDefinition(tf.ID, tf.Duration, nodes, clips), nil
}
