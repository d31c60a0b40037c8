package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), filepath.Join(t.TempDir(), "events.db"), "crypt")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStoreAppendAndQuery(t *testing.T) {
	st := openTestStore(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := st.Append(base, "info", "timeline.started", "", map[string]interface{}{"timeline_id": "intro"}, "inst-1"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := st.Append(base.Add(time.Second), "info", "timeline.completed", "done", nil, "inst-1"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := st.Append(base.Add(2*time.Second), "info", "system.startup", "", nil, ""); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	rows, err := st.Query(10)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Event != "system.startup" {
		t.Errorf("expected newest first, got %s", rows[0].Event)
	}
	if rows[0].SessionID != nil {
		t.Errorf("expected nil session for empty id, got %v", *rows[0].SessionID)
	}
	if rows[1].Message == nil || *rows[1].Message != "done" {
		t.Errorf("expected message 'done', got %v", rows[1].Message)
	}
	if rows[2].Fields["timeline_id"] != "intro" {
		t.Errorf("expected timeline_id intro, got %v", rows[2].Fields["timeline_id"])
	}
	if rows[2].RoomID != "crypt" {
		t.Errorf("expected room crypt, got %s", rows[2].RoomID)
	}
}

func TestStoreQuerySession(t *testing.T) {
	st := openTestStore(t)
	now := time.Now()

	st.Append(now, "info", "timeline.started", "", nil, "a")
	st.Append(now, "info", "timeline.started", "", nil, "b")
	st.Append(now, "info", "timeline.stopped", "", nil, "a")

	rows, err := st.QuerySession("a")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Event != "timeline.started" || rows[1].Event != "timeline.stopped" {
		t.Errorf("expected started then stopped, got %s then %s", rows[0].Event, rows[1].Event)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), "  ", "room"); err == nil {
		t.Error("expected error for empty path")
	}
}
