package timeline

import (
	"maps"
	"math"
	"slices"

	"github.com/google/uuid"
)

// Context is the mutable state of one running instance of a Definition.
//
// Contexts are owned by a Scheduler and mutated only from its Tick. Nothing
// here is safe for concurrent use.
type Context struct {
	id      string
	def     *Definition
	subject Subject

	timescale     float64
	elapsed       float64
	stopRequested bool
	stopped       bool
	completed     bool

	payload     map[string]any
	onStopped   []func(*Context)
	onCompleted []func(*Context)

	players []ClipPlayer
	hooks   *Hooks
}

// NewContext allocates a context for def bound to subject. A nil subject
// means the instance has no subject and is never stopped for losing one.
func NewContext(def *Definition, subject Subject) *Context {
	ctx := &Context{
		id:        uuid.NewString(),
		def:       def,
		subject:   subject,
		timescale: 1,
		payload:   make(map[string]any),
		players:   make([]ClipPlayer, len(def.clips)),
	}
	for i := range def.clips {
		ctx.players[i] = newClipPlayer(&def.clips[i], i)
	}
	return ctx
}

// ID returns the unique id of this instance.
func (c *Context) ID() string { return c.id }

// Definition returns the shared definition this instance runs.
func (c *Context) Definition() *Definition { return c.def }

// Subject returns the subject the instance was started for, or nil.
func (c *Context) Subject() Subject { return c.subject }

// ElapsedTime returns the instance's scaled elapsed time in seconds.
func (c *Context) ElapsedTime() float64 { return c.elapsed }

// Timescale returns the multiplier applied to each tick's delta.
func (c *Context) Timescale() float64 { return c.timescale }

// SetTimescale sets the delta multiplier, clamped to >= 0.
func (c *Context) SetTimescale(v float64) {
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	c.timescale = v
}

// Finished reports whether the instance has stopped or completed.
func (c *Context) Finished() bool { return c.stopped || c.completed }

// Stopped reports whether the instance ended by a stop.
func (c *Context) Stopped() bool { return c.stopped }

// Completed reports whether the instance ran to its full duration.
func (c *Context) Completed() bool { return c.completed }

// StopRequested reports whether a cooperative stop is pending.
func (c *Context) StopRequested() bool { return c.stopRequested }

// RequestStop asks the scheduler to stop the instance on its next tick.
func (c *Context) RequestStop() { c.stopRequested = true }

// SetPayload stores value under key, replacing any previous value.
func (c *Context) SetPayload(key string, value any) {
	c.payload[key] = value
}

// Payload returns the value stored under key, or nil.
func (c *Context) Payload(key string) any {
	return c.payload[key]
}

// PayloadKeys returns the payload keys in sorted order.
func (c *Context) PayloadKeys() []string {
	return slices.Sorted(maps.Keys(c.payload))
}

// OnStopped registers fn to run once when the instance stops.
func (c *Context) OnStopped(fn func(*Context)) {
	c.onStopped = append(c.onStopped, fn)
}

// OnCompleted registers fn to run once when the instance completes.
func (c *Context) OnCompleted(fn func(*Context)) {
	c.onCompleted = append(c.onCompleted, fn)
}

// NotifyStop ends the instance as stopped: playing clips are stopped, then
// the stop subscribers run. It does nothing if the instance has already
// finished. A scheduler still holding the context drops it on its next tick.
func (c *Context) NotifyStop() {
	if c.Finished() {
		return
	}
	c.stopClips()
	c.stopped = true
	for _, fn := range c.onStopped {
		fn(c)
	}
	c.hooks.stopped(c)
}

// NotifyComplete ends the instance as completed: playing clips are stopped,
// then the completion subscribers run. It does nothing if the instance has
// already finished or has not yet reached its duration.
func (c *Context) NotifyComplete() {
	if c.Finished() || c.elapsed < c.def.duration {
		return
	}
	c.stopClips()
	c.completed = true
	for _, fn := range c.onCompleted {
		fn(c)
	}
	c.hooks.completed(c)
}

// NumClips returns the number of clip players in this instance.
func (c *Context) NumClips() int { return len(c.players) }

// ClipPlayer returns the player for the i-th clip of the definition.
func (c *Context) ClipPlayer(i int) *ClipPlayer { return &c.players[i] }

// Playing reports whether the i-th clip is playing.
func (c *Context) Playing(i int) bool { return c.players[i].playing }

// ClipTick returns the number of ticks the i-th clip has delivered.
func (c *Context) ClipTick(i int) int { return c.players[i].currentTick }

// Clone returns an unfinished copy of c with a new id. Time, timescale,
// payload and clip progress are copied; subscribers and any pending stop
// request are not.
func (c *Context) Clone() *Context {
	cp := &Context{
		id:        uuid.NewString(),
		def:       c.def,
		subject:   c.subject,
		timescale: c.timescale,
		elapsed:   c.elapsed,
		payload:   maps.Clone(c.payload),
		players:   slices.Clone(c.players),
	}
	if cp.payload == nil {
		cp.payload = make(map[string]any)
	}
	return cp
}

func (c *Context) subjectGone() bool {
	return c.subject != nil && !c.subject.Alive()
}

func (c *Context) stopClips() {
	for i := range c.players {
		c.players[i].Stop(c)
	}
}
