package timeline

// window is the slice of timeline time a tick covers: (prev, now].
//
// While prev is exactly 0 the window is closed on the left, [0, now], so
// items at offset 0 fire on the first tick even when no time passes.
type window struct {
	prev, now float64
	closed    bool
}

func newWindow(prev, now float64) window {
	return window{prev: prev, now: now, closed: prev == 0}
}

func (w window) contains(t float64) bool {
	if t > w.now {
		return false
	}
	if w.closed {
		return t >= w.prev
	}
	return t > w.prev
}
