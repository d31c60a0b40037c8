package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/AaronLay10/SentientTimeline/internal/events"
	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

func newTestRuntime(t *testing.T, resolve SubjectResolver) (*Runtime, *timeline.Scheduler) {
	t.Helper()
	sched := timeline.NewScheduler()
	cat := NewCatalog(newTestActions(), zerolog.Nop())
	cat.Put(timeline.NewDefinition("ambient", 10, nil, nil))
	cat.Put(timeline.NewDefinition("finale", 5, nil, nil))
	return NewRuntime(&directExec{sched: sched}, cat, resolve), sched
}

func TestRuntimeStartAndInstances(t *testing.T) {
	rt, sched := newTestRuntime(t, nil)
	ctx := context.Background()

	info, err := rt.Start(ctx, "ambient", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.TimelineID != "ambient" || info.InstanceID == "" || info.Timescale != 1 || info.Duration != 10 {
		t.Errorf("unexpected info %+v", info)
	}

	sched.Tick(2)
	list, err := rt.Instances(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].Elapsed != 2 {
		t.Errorf("unexpected instances %+v", list)
	}

	if _, err := rt.Start(ctx, "ghost", ""); !errors.Is(err, ErrDefinitionNotFound) {
		t.Errorf("expected ErrDefinitionNotFound, got %v", err)
	}
	if got := rt.Timelines(); len(got) != 2 {
		t.Errorf("expected 2 timelines, got %v", got)
	}
}

func TestRuntimeStartWithSubject(t *testing.T) {
	alive := true
	resolve := func(name string) (timeline.Subject, error) {
		if name != "crypt_door" {
			return nil, errors.New("device not registered")
		}
		return timeline.SubjectFunc(func() bool { return alive }), nil
	}
	rt, sched := newTestRuntime(t, resolve)
	ctx := context.Background()

	_, err := rt.Start(ctx, "ambient", "ghost")
	if !errors.Is(err, ErrSubjectNotFound) {
		t.Errorf("expected ErrSubjectNotFound, got %v", err)
	}
	if err != nil && err.Error() != "subject not found: device not registered" {
		t.Errorf("unexpected error text %q", err)
	}
	if _, err := rt.Start(ctx, "ambient", "crypt_door"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alive = false
	sched.Tick(0.1)
	if sched.Len() != 0 {
		t.Error("expected instance removed once its subject is gone")
	}

	rtNoResolver, _ := newTestRuntime(t, nil)
	if _, err := rtNoResolver.Start(ctx, "ambient", "crypt_door"); err == nil {
		t.Error("expected error without resolver")
	}
}

func TestRuntimeStop(t *testing.T) {
	events.Clear()
	rt, sched := newTestRuntime(t, nil)
	ctx := context.Background()

	first, _ := rt.Start(ctx, "ambient", "")
	second, _ := rt.Start(ctx, "ambient", "")

	ok, err := rt.Stop(ctx, "ambient")
	if err != nil || !ok {
		t.Fatalf("expected stop to succeed, got ok=%v err=%v", ok, err)
	}
	sched.Tick(0.1)

	list, _ := rt.Instances(ctx)
	if len(list) != 1 || list[0].InstanceID != second.InstanceID {
		t.Errorf("expected only the second instance left, got %+v", list)
	}
	if e := lastEvent("timeline.stop_requested"); e == nil || e.Fields["instance_id"] != first.InstanceID {
		t.Errorf("expected stop_requested for first instance, got %+v", e)
	}

	ok, _ = rt.StopByID(ctx, second.InstanceID)
	if !ok {
		t.Error("expected StopByID to find instance")
	}
	ok, _ = rt.StopByID(ctx, "missing")
	if ok {
		t.Error("expected StopByID to report missing")
	}
	ok, _ = rt.Stop(ctx, "finale")
	if ok {
		t.Error("expected Stop of non-running timeline to report false")
	}
}

func TestRuntimeStopAll(t *testing.T) {
	rt, sched := newTestRuntime(t, nil)
	ctx := context.Background()
	rt.Start(ctx, "ambient", "")
	rt.Start(ctx, "finale", "")

	n, err := rt.StopAll(ctx)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 stopped, got %d err=%v", n, err)
	}
	sched.Tick(0)
	if sched.Len() != 0 {
		t.Errorf("expected empty scheduler, got %d", sched.Len())
	}
}

func TestRuntimeSetTimescale(t *testing.T) {
	events.Clear()
	rt, _ := newTestRuntime(t, nil)
	ctx := context.Background()
	first, _ := rt.Start(ctx, "ambient", "")
	second, _ := rt.Start(ctx, "ambient", "")

	info, ok, err := rt.SetTimescale(ctx, "ambient", 3)
	if err != nil || !ok {
		t.Fatalf("expected timescale to apply, got ok=%v err=%v", ok, err)
	}
	if info.InstanceID != first.InstanceID || info.Timescale != 3 {
		t.Errorf("expected first instance at 3, got %+v", info)
	}

	info, ok, _ = rt.SetTimescaleByID(ctx, second.InstanceID, -2)
	if !ok || info.Timescale != 0 {
		t.Errorf("expected negative scale clamped to 0, got %+v", info)
	}

	if _, ok, _ := rt.SetTimescale(ctx, "finale", 2); ok {
		t.Error("expected no instance for finale")
	}
	if _, ok, _ := rt.SetTimescaleByID(ctx, "missing", 2); ok {
		t.Error("expected missing instance")
	}
	if countEvents("timeline.timescale") != 2 {
		t.Errorf("expected 2 timeline.timescale events, got %d", countEvents("timeline.timescale"))
	}
}
