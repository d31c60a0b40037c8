package timeline

import "slices"

// Scheduler advances every live instance once per Tick.
//
// The live set is an ordered slice. Removing the instance at index i shifts
// later instances down by one, so Tick re-examines index i instead of
// advancing. Lookups by definition id return the earliest started match.
//
// A Scheduler is single-threaded: Tick and every other method must be called
// from the same goroutine.
type Scheduler struct {
	instances []*Context
	hooks     Hooks
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// SetHooks installs observer callbacks.
func (s *Scheduler) SetHooks(h Hooks) {
	s.hooks = h
}

// StartInstance creates a context for def bound to subject, adds it to the
// live set and returns it so callers can subscribe or seed the payload
// before the first tick.
func (s *Scheduler) StartInstance(def *Definition, subject Subject) *Context {
	ctx := NewContext(def, subject)
	s.AddInstance(ctx)
	return ctx
}

// AddInstance adds an already constructed context without resetting it.
// Finished contexts and contexts already in the live set are ignored.
func (s *Scheduler) AddInstance(ctx *Context) {
	if ctx == nil || ctx.Finished() || slices.Contains(s.instances, ctx) {
		return
	}
	ctx.hooks = &s.hooks
	s.instances = append(s.instances, ctx)
	s.hooks.started(ctx)
}

// StopInstance requests a cooperative stop of the first live instance of
// definitionID. The instance is finalized on the next Tick.
func (s *Scheduler) StopInstance(definitionID string) {
	if ctx := s.GetInstance(definitionID); ctx != nil {
		ctx.RequestStop()
	}
}

// StopInstanceByID requests a cooperative stop of the instance with the
// given instance id.
func (s *Scheduler) StopInstanceByID(instanceID string) bool {
	ctx := s.instanceByID(instanceID)
	if ctx == nil {
		return false
	}
	ctx.RequestStop()
	return true
}

// StopAllInstances requests a cooperative stop of every live instance.
func (s *Scheduler) StopAllInstances() {
	for _, ctx := range s.instances {
		ctx.RequestStop()
	}
}

// ContainsInstance reports whether any live instance runs definitionID.
func (s *Scheduler) ContainsInstance(definitionID string) bool {
	return s.GetInstance(definitionID) != nil
}

// GetInstance returns the first live instance of definitionID, or nil.
func (s *Scheduler) GetInstance(definitionID string) *Context {
	for _, ctx := range s.instances {
		if ctx.def.id == definitionID {
			return ctx
		}
	}
	return nil
}

// SetInstanceTimescale sets the timescale of the first live instance of
// definitionID.
func (s *Scheduler) SetInstanceTimescale(definitionID string, scale float64) {
	if ctx := s.GetInstance(definitionID); ctx != nil {
		ctx.SetTimescale(scale)
	}
}

// SetTimescaleByID sets the timescale of the instance with the given id.
func (s *Scheduler) SetTimescaleByID(instanceID string, scale float64) bool {
	ctx := s.instanceByID(instanceID)
	if ctx == nil {
		return false
	}
	ctx.SetTimescale(scale)
	return true
}

// Instances returns the live instances in iteration order.
func (s *Scheduler) Instances() []*Context {
	return slices.Clone(s.instances)
}

// Len returns the number of live instances.
func (s *Scheduler) Len() int { return len(s.instances) }

// Shutdown stops every live instance immediately, stopping playing clips
// before the stop subscribers run, and empties the live set.
func (s *Scheduler) Shutdown() {
	live := s.instances
	s.instances = nil
	for _, ctx := range live {
		ctx.NotifyStop()
	}
}

// Tick advances every live instance by deltaTime seconds (scaled per
// instance). Negative and NaN deltas count as zero, as does a scaled delta
// that is not a number (an infinite delta at timescale 0).
func (s *Scheduler) Tick(deltaTime float64) {
	if !(deltaTime > 0) {
		deltaTime = 0
	}

	for i := 0; i < len(s.instances); {
		ctx := s.instances[i]

		if ctx.stopRequested || ctx.Finished() || ctx.subjectGone() {
			ctx.NotifyStop()
			s.removeAt(i, ctx)
			continue
		}

		prev := ctx.elapsed
		scaled := deltaTime * ctx.timescale
		if !(scaled > 0) {
			scaled = 0
		}
		ctx.elapsed += scaled
		s.dispatch(ctx, newWindow(prev, ctx.elapsed), scaled)

		if ctx.elapsed >= ctx.def.duration {
			ctx.NotifyComplete()
			s.removeAt(i, ctx)
			continue
		}
		i++
	}
}

func (s *Scheduler) dispatch(ctx *Context, w window, scaled float64) {
	for i, node := range ctx.def.nodes {
		if w.contains(node.Offset()) {
			node.Execute(ctx)
			ctx.hooks.nodeFired(ctx, i)
		}
	}

	for i := range ctx.players {
		p := &ctx.players[i]
		switch {
		case p.playing:
			p.Play(scaled, ctx)
		case w.contains(p.clip.StartTime):
			p.Play(w.now-p.clip.StartTime, ctx)
		}
	}
}

// removeAt drops ctx from index i. A callback that shut the scheduler down
// mid-tick leaves nothing to remove.
func (s *Scheduler) removeAt(i int, ctx *Context) {
	if i < len(s.instances) && s.instances[i] == ctx {
		s.instances = slices.Delete(s.instances, i, i+1)
	}
}

func (s *Scheduler) instanceByID(instanceID string) *Context {
	for _, ctx := range s.instances {
		if ctx.id == instanceID {
			return ctx
		}
	}
	return nil
}
