package timeline

import "math"

// tickEpsilon absorbs float accumulation error when a clip's local time lands
// on a tick boundary (ten steps of 0.1 must reach tick 1 of a 1.0 interval).
const tickEpsilon = 1e-9

// ClipHandler receives a clip's playback callbacks.
type ClipHandler interface {
	OnStart(ctx *Context)
	OnTick(ctx *Context)
	OnStop(ctx *Context)
}

// ClipFuncs is a ClipHandler backed by functions. Nil functions are skipped.
type ClipFuncs struct {
	Start func(ctx *Context)
	Tick  func(ctx *Context)
	Stop  func(ctx *Context)
}

func (f ClipFuncs) OnStart(ctx *Context) {
	if f.Start != nil {
		f.Start(ctx)
	}
}

func (f ClipFuncs) OnTick(ctx *Context) {
	if f.Tick != nil {
		f.Tick(ctx)
	}
}

func (f ClipFuncs) OnStop(ctx *Context) {
	if f.Stop != nil {
		f.Stop(ctx)
	}
}

// Clip is the immutable schedule of a periodically ticking segment.
// TotalTicks <= 0 makes a clip that starts and stops immediately.
type Clip struct {
	StartTime    float64
	TotalTicks   int
	TickInterval float64
	Handler      ClipHandler
}

// ClipPlayer is the playback state of one Clip inside one instance.
// Players are never shared between instances.
type ClipPlayer struct {
	clip        *Clip
	index       int
	playing     bool
	currentTick int
	elapsed     float64
}

func newClipPlayer(clip *Clip, index int) ClipPlayer {
	return ClipPlayer{clip: clip, index: index}
}

// Clip returns the schedule this player runs.
func (p *ClipPlayer) Clip() *Clip { return p.clip }

// Playing reports whether the clip is between its start and stop callbacks.
func (p *ClipPlayer) Playing() bool { return p.playing }

// CurrentTick returns the number of ticks delivered in the current run.
func (p *ClipPlayer) CurrentTick() int { return p.currentTick }

// Elapsed returns the clip-local time accumulated in the current run.
func (p *ClipPlayer) Elapsed() float64 { return p.elapsed }

// Play advances the clip by dt seconds of clip-local time, starting it first
// if needed. A single call delivers every tick the accumulated time has
// crossed, so the total tick count depends only on the total time delivered.
func (p *ClipPlayer) Play(dt float64, ctx *Context) {
	if !p.playing {
		p.playing = true
		p.currentTick = 0
		p.elapsed = 0
		p.clip.handler().OnStart(ctx)
		ctx.hooks.clipStarted(ctx, p.index)
	}

	total := p.clip.TotalTicks
	if total <= 0 {
		p.Stop(ctx)
		return
	}

	p.elapsed += dt
	target := p.targetTick(total)
	for p.currentTick < target {
		p.currentTick++
		p.clip.handler().OnTick(ctx)
		ctx.hooks.clipTicked(ctx, p.index, p.currentTick)
		if p.currentTick >= total {
			p.Stop(ctx)
			break
		}
	}
}

// Stop ends the current run. It is a no-op when the clip is not playing.
func (p *ClipPlayer) Stop(ctx *Context) {
	if !p.playing {
		return
	}
	p.playing = false
	p.clip.handler().OnStop(ctx)
	ctx.hooks.clipStopped(ctx, p.index)
}

// targetTick is floor(elapsed / interval), capped at total. A non-positive
// interval delivers every tick at once.
func (p *ClipPlayer) targetTick(total int) int {
	interval := p.clip.TickInterval
	if !(interval > 0) {
		return total
	}
	t := math.Floor(p.elapsed/interval + tickEpsilon)
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if t >= float64(total) {
		return total
	}
	return int(t)
}

func (c *Clip) handler() ClipHandler {
	if c.Handler == nil {
		return ClipFuncs{}
	}
	return c.Handler
}
