package timeline

// Node is a zero-duration trigger at a fixed offset on a timeline.
//
// A Node has no state of its own. The scheduler calls Execute only for the
// tick whose activation window contains Offset, which is what makes a node
// fire once per instance.
type Node interface {
	Offset() float64
	Execute(ctx *Context)
}

// NodeFunc is a Node backed by a function.
type NodeFunc struct {
	At float64
	Fn func(ctx *Context)
}

// Offset returns the node's time offset in seconds.
func (n NodeFunc) Offset() float64 { return n.At }

// Execute calls Fn.
func (n NodeFunc) Execute(ctx *Context) {
	if n.Fn != nil {
		n.Fn(ctx)
	}
}
