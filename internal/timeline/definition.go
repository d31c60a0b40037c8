package timeline

import "slices"

// Definition is the immutable schedule of a timeline: an id, a duration in
// seconds, and unordered collections of nodes and clips. One Definition is
// shared by every instance started from it.
type Definition struct {
	id       string
	duration float64
	nodes    []Node
	clips    []Clip
}

// NewDefinition builds a Definition. The slices are copied so later changes
// by the caller do not leak into running instances.
func NewDefinition(id string, duration float64, nodes []Node, clips []Clip) *Definition {
	return &Definition{
		id:       id,
		duration: duration,
		nodes:    slices.Clone(nodes),
		clips:    slices.Clone(clips),
	}
}

// ID returns the definition id.
func (d *Definition) ID() string { return d.id }

// Duration returns the timeline length in seconds.
func (d *Definition) Duration() float64 { return d.duration }

// Nodes returns a copy of the node list.
func (d *Definition) Nodes() []Node { return slices.Clone(d.nodes) }

// Clips returns a copy of the clip list.
func (d *Definition) Clips() []Clip { return slices.Clone(d.clips) }

// NumNodes returns the number of nodes.
func (d *Definition) NumNodes() int { return len(d.nodes) }

// NumClips returns the number of clips.
func (d *Definition) NumClips() int { return len(d.clips) }
