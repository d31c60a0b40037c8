package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/AaronLay10/SentientTimeline/internal/events"
)

const triggerTimeout = 5 * time.Second

// ScheduleSpec starts a timeline on a cron expression.
type ScheduleSpec struct {
	Timeline string
	Cron     string
	Subject  string
}

// Schedules fires timeline starts from cron expressions.
type Schedules struct {
	c       *cron.Cron
	parser  cron.Parser
	runtime *Runtime
	log     zerolog.Logger
	specs   []ScheduleSpec
}

// NewSchedules creates a stopped cron runner evaluating expressions in loc.
func NewSchedules(runtime *Runtime, loc *time.Location, logger zerolog.Logger) *Schedules {
	if loc == nil {
		loc = time.Local
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Schedules{
		c:       cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
		parser:  parser,
		runtime: runtime,
		log:     logger,
	}
}

// Add registers spec. The timeline does not need to exist yet; a missing
// timeline is reported when the schedule fires.
func (s *Schedules) Add(spec ScheduleSpec) error {
	if spec.Timeline == "" {
		return fmt.Errorf("schedule: timeline is required")
	}
	if _, err := s.parser.Parse(spec.Cron); err != nil {
		return fmt.Errorf("schedule %s: invalid cron %q: %w", spec.Timeline, spec.Cron, err)
	}
	if _, err := s.c.AddFunc(spec.Cron, func() { s.fire(spec) }); err != nil {
		return fmt.Errorf("schedule %s: %w", spec.Timeline, err)
	}
	s.specs = append(s.specs, spec)
	return nil
}

// Len returns the number of registered schedules.
func (s *Schedules) Len() int { return len(s.specs) }

// Start begins firing schedules.
func (s *Schedules) Start() {
	s.c.Start()
}

// Stop stops the cron runner and waits for running triggers.
func (s *Schedules) Stop() {
	<-s.c.Stop().Done()
}

func (s *Schedules) fire(spec ScheduleSpec) {
	ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
	defer cancel()

	info, err := s.runtime.Start(ctx, spec.Timeline, spec.Subject)
	if err != nil {
		s.log.Warn().Err(err).Str("timeline", spec.Timeline).Str("cron", spec.Cron).Msg("scheduled start failed")
		events.Emit("error", "schedule.error", err.Error(), map[string]interface{}{
			"timeline_id": spec.Timeline,
			"cron":        spec.Cron,
			"subject":     spec.Subject,
		})
		return
	}

	events.EmitSession(info.InstanceID, "info", "schedule.triggered", "", map[string]interface{}{
		"timeline_id": spec.Timeline,
		"instance_id": info.InstanceID,
		"cron":        spec.Cron,
		"subject":     spec.Subject,
	})
}
