package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/AaronLay10/SentientTimeline/internal/events"
	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

// directExec runs commands inline, standing in for the driver.
type directExec struct {
	sched *timeline.Scheduler
}

func (d *directExec) Do(_ context.Context, fn func(*timeline.Scheduler)) error {
	fn(d.sched)
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func countEvents(name string) int {
	n := 0
	for _, e := range events.Snapshot() {
		if e.Name == name {
			n++
		}
	}
	return n
}

func lastEvent(name string) *events.Event {
	snap := events.Snapshot()
	for i := len(snap) - 1; i >= 0; i-- {
		if snap[i].Name == name {
			return &snap[i]
		}
	}
	return nil
}

func newTestActions() *Actions {
	return NewActions(zerolog.Nop())
}
