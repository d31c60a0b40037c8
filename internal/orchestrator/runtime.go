package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/AaronLay10/SentientTimeline/internal/events"
	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

// ErrSubjectNotFound is returned when a subject name cannot be resolved.
var ErrSubjectNotFound = errors.New("subject not found")

// Executor runs fn on the goroutine that owns the scheduler and waits for
// it to finish.
type Executor interface {
	Do(ctx context.Context, fn func(*timeline.Scheduler)) error
}

// SubjectResolver maps a subject name (a device id) to a Subject. An empty
// name never reaches the resolver.
type SubjectResolver func(name string) (timeline.Subject, error)

// InstanceInfo is a point-in-time view of a live instance.
type InstanceInfo struct {
	InstanceID    string  `json:"instance_id"`
	TimelineID    string  `json:"timeline_id"`
	Elapsed       float64 `json:"elapsed"`
	Duration      float64 `json:"duration"`
	Timescale     float64 `json:"timescale"`
	StopRequested bool    `json:"stop_requested"`
}

func infoOf(ctx *timeline.Context) InstanceInfo {
	return InstanceInfo{
		InstanceID:    ctx.ID(),
		TimelineID:    ctx.Definition().ID(),
		Elapsed:       ctx.ElapsedTime(),
		Duration:      ctx.Definition().Duration(),
		Timescale:     ctx.Timescale(),
		StopRequested: ctx.StopRequested(),
	}
}

// Runtime is the thread-safe command surface over a scheduler owned by an
// Executor. Every mutation is funnelled through Executor.Do.
type Runtime struct {
	exec    Executor
	catalog *Catalog
	resolve SubjectResolver
}

// NewRuntime creates a runtime. resolve may be nil if no subjects are used.
func NewRuntime(exec Executor, catalog *Catalog, resolve SubjectResolver) *Runtime {
	return &Runtime{exec: exec, catalog: catalog, resolve: resolve}
}

// Timelines returns the ids of the loaded definitions.
func (r *Runtime) Timelines() []string {
	return r.catalog.IDs()
}

// Start starts a new instance of timelineID bound to the named subject.
func (r *Runtime) Start(ctx context.Context, timelineID, subject string) (InstanceInfo, error) {
	def, err := r.catalog.Get(timelineID)
	if err != nil {
		return InstanceInfo{}, err
	}

	var subj timeline.Subject
	if subject != "" {
		if r.resolve == nil {
			return InstanceInfo{}, fmt.Errorf("%w: %s: no subject resolver configured", ErrSubjectNotFound, subject)
		}
		subj, err = r.resolve(subject)
		if err != nil {
			return InstanceInfo{}, fmt.Errorf("%w: %w", ErrSubjectNotFound, err)
		}
	}

	var info InstanceInfo
	err = r.exec.Do(ctx, func(s *timeline.Scheduler) {
		info = infoOf(s.StartInstance(def, subj))
	})
	return info, err
}

// Stop requests a cooperative stop of the first live instance of
// timelineID. It reports whether one was found.
func (r *Runtime) Stop(ctx context.Context, timelineID string) (bool, error) {
	var found *timeline.Context
	err := r.exec.Do(ctx, func(s *timeline.Scheduler) {
		found = s.GetInstance(timelineID)
		s.StopInstance(timelineID)
	})
	if err != nil || found == nil {
		return false, err
	}
	emitStopRequested(found)
	return true, nil
}

// StopByID requests a cooperative stop of one instance.
func (r *Runtime) StopByID(ctx context.Context, instanceID string) (bool, error) {
	var found *timeline.Context
	err := r.exec.Do(ctx, func(s *timeline.Scheduler) {
		for _, c := range s.Instances() {
			if c.ID() == instanceID {
				found = c
				break
			}
		}
		s.StopInstanceByID(instanceID)
	})
	if err != nil || found == nil {
		return false, err
	}
	emitStopRequested(found)
	return true, nil
}

// StopAll requests a stop of every live instance and returns how many
// there were.
func (r *Runtime) StopAll(ctx context.Context) (int, error) {
	var n int
	err := r.exec.Do(ctx, func(s *timeline.Scheduler) {
		n = s.Len()
		s.StopAllInstances()
	})
	return n, err
}

// SetTimescale sets the timescale of the first live instance of timelineID.
func (r *Runtime) SetTimescale(ctx context.Context, timelineID string, scale float64) (InstanceInfo, bool, error) {
	var info InstanceInfo
	var found bool
	err := r.exec.Do(ctx, func(s *timeline.Scheduler) {
		if c := s.GetInstance(timelineID); c != nil {
			s.SetInstanceTimescale(timelineID, scale)
			info, found = infoOf(c), true
		}
	})
	if found {
		emitTimescale(info)
	}
	return info, found, err
}

// SetTimescaleByID sets the timescale of one instance.
func (r *Runtime) SetTimescaleByID(ctx context.Context, instanceID string, scale float64) (InstanceInfo, bool, error) {
	var info InstanceInfo
	var found bool
	err := r.exec.Do(ctx, func(s *timeline.Scheduler) {
		if !s.SetTimescaleByID(instanceID, scale) {
			return
		}
		for _, c := range s.Instances() {
			if c.ID() == instanceID {
				info, found = infoOf(c), true
				return
			}
		}
	})
	if found {
		emitTimescale(info)
	}
	return info, found, err
}

// Instances returns the live instances in iteration order.
func (r *Runtime) Instances(ctx context.Context) ([]InstanceInfo, error) {
	var out []InstanceInfo
	err := r.exec.Do(ctx, func(s *timeline.Scheduler) {
		live := s.Instances()
		out = make([]InstanceInfo, 0, len(live))
		for _, c := range live {
			out = append(out, infoOf(c))
		}
	})
	return out, err
}

func emitStopRequested(c *timeline.Context) {
	events.EmitSession(c.ID(), "info", "timeline.stop_requested", "", map[string]interface{}{
		"timeline_id": c.Definition().ID(),
		"instance_id": c.ID(),
	})
}

func emitTimescale(info InstanceInfo) {
	events.EmitSession(info.InstanceID, "info", "timeline.timescale", "", map[string]interface{}{
		"timeline_id": info.TimelineID,
		"instance_id": info.InstanceID,
		"timescale":   info.Timescale,
	})
}
