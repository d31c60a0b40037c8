package orchestrator

import (
	"sync/atomic"

	"github.com/AaronLay10/SentientTimeline/internal/events"
	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

// Stats counts scheduler activity for /metrics.
type Stats struct {
	started    atomic.Uint64
	stopped    atomic.Uint64
	completed  atomic.Uint64
	nodesFired atomic.Uint64
	clipTicks  atomic.Uint64
}

// StatsSnapshot is a copy of the counters.
type StatsSnapshot struct {
	Started    uint64
	Stopped    uint64
	Completed  uint64
	NodesFired uint64
	ClipTicks  uint64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Started:    s.started.Load(),
		Stopped:    s.stopped.Load(),
		Completed:  s.completed.Load(),
		NodesFired: s.nodesFired.Load(),
		ClipTicks:  s.clipTicks.Load(),
	}
}

// Hooks returns scheduler hooks that count activity and emit lifecycle
// events. Each event carries the instance id as its session id.
func (s *Stats) Hooks() timeline.Hooks {
	return timeline.Hooks{
		Started: func(ctx *timeline.Context) {
			s.started.Add(1)
			emitInstance(ctx, "timeline.started", nil)
		},
		Stopped: func(ctx *timeline.Context) {
			s.stopped.Add(1)
			emitInstance(ctx, "timeline.stopped", map[string]interface{}{
				"elapsed": ctx.ElapsedTime(),
			})
		},
		Completed: func(ctx *timeline.Context) {
			s.completed.Add(1)
			emitInstance(ctx, "timeline.completed", map[string]interface{}{
				"elapsed": ctx.ElapsedTime(),
			})
		},
		NodeFired: func(ctx *timeline.Context, node int) {
			s.nodesFired.Add(1)
			emitInstance(ctx, "node.fired", map[string]interface{}{
				"node": node,
			})
		},
		ClipStarted: func(ctx *timeline.Context, clip int) {
			emitInstance(ctx, "clip.started", map[string]interface{}{
				"clip": clip,
			})
		},
		ClipTicked: func(*timeline.Context, int, int) {
			s.clipTicks.Add(1)
		},
		ClipStopped: func(ctx *timeline.Context, clip int) {
			emitInstance(ctx, "clip.stopped", map[string]interface{}{
				"clip":  clip,
				"ticks": ctx.ClipTick(clip),
			})
		},
	}
}

func emitInstance(ctx *timeline.Context, name string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{}, 2)
	}
	fields["timeline_id"] = ctx.Definition().ID()
	fields["instance_id"] = ctx.ID()
	events.EmitSession(ctx.ID(), "info", name, "", fields)
}
