package orchestrator

import (
	"errors"
	"strings"
	"testing"

	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

func TestLoadDefinitionFileRuns(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "intro.yaml", introYAML)

	def, err := LoadDefinitionFile(path, newTestActions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.ID() != "crypt_intro" || def.NumNodes() != 2 || def.NumClips() != 1 {
		t.Fatalf("unexpected definition %s nodes=%d clips=%d", def.ID(), def.NumNodes(), def.NumClips())
	}

	sched := timeline.NewScheduler()
	ctx := sched.StartInstance(def, nil)

	sched.Tick(0.5)
	if ctx.Payload("phase") != "dark" {
		t.Errorf("expected node at 0 to set phase, got %v", ctx.Payload("phase"))
	}
	sched.Tick(2)
	if ctx.Payload("clip") != "on" {
		t.Errorf("expected clip started, got %v", ctx.Payload("clip"))
	}
	sched.Tick(5)
	if ctx.Payload("clip") != "off" {
		t.Errorf("expected clip stopped after its ticks, got %v", ctx.Payload("clip"))
	}
	sched.Tick(5)
	if !ctx.Completed() {
		t.Error("expected instance to complete")
	}
}

func TestLoadDefinitionFileUnknownAction(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", "version: 1\nid: bad\nduration: 1\nnodes:\n  - at: 0\n    action: teleport\n")

	_, err := LoadDefinitionFile(path, newTestActions())
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad.yaml") || !strings.Contains(err.Error(), "node[0]") {
		t.Errorf("expected error to name file and node, got %v", err)
	}
}

func TestLoadDefinitionFileBadParams(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", `
version: 1
id: bad
duration: 1
clips:
  - start: 0
    ticks: 1
    interval: 1
    on_tick: {action: payload.set, params: {value: 1}}
`)
	_, err := LoadDefinitionFile(path, newTestActions())
	if err == nil || !strings.Contains(err.Error(), "clip[0]: on_tick") {
		t.Errorf("expected clip handler error, got %v", err)
	}
}

func TestLoadDefinitionFileMissing(t *testing.T) {
	if _, err := LoadDefinitionFile("/nonexistent/x.yaml", newTestActions()); err == nil {
		t.Error("expected error for missing file")
	}
}
