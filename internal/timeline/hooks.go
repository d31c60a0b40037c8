package timeline

// Hooks observe scheduler activity. They run synchronously inside Tick and
// the Start/Add calls; nil fields are skipped.
type Hooks struct {
	Started     func(ctx *Context)
	Stopped     func(ctx *Context)
	Completed   func(ctx *Context)
	NodeFired   func(ctx *Context, node int)
	ClipStarted func(ctx *Context, clip int)
	ClipTicked  func(ctx *Context, clip, tick int)
	ClipStopped func(ctx *Context, clip int)
}

func (h *Hooks) started(ctx *Context) {
	if h != nil && h.Started != nil {
		h.Started(ctx)
	}
}

func (h *Hooks) stopped(ctx *Context) {
	if h != nil && h.Stopped != nil {
		h.Stopped(ctx)
	}
}

func (h *Hooks) completed(ctx *Context) {
	if h != nil && h.Completed != nil {
		h.Completed(ctx)
	}
}

func (h *Hooks) nodeFired(ctx *Context, node int) {
	if h != nil && h.NodeFired != nil {
		h.NodeFired(ctx, node)
	}
}

func (h *Hooks) clipStarted(ctx *Context, clip int) {
	if h != nil && h.ClipStarted != nil {
		h.ClipStarted(ctx, clip)
	}
}

func (h *Hooks) clipTicked(ctx *Context, clip, tick int) {
	if h != nil && h.ClipTicked != nil {
		h.ClipTicked(ctx, clip, tick)
	}
}

func (h *Hooks) clipStopped(ctx *Context, clip int) {
	if h != nil && h.ClipStopped != nil {
		h.ClipStopped(ctx, clip)
	}
}
