package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/AaronLay10/SentientTimeline/internal/orchestrator"
	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

// inlineExec runs scheduler commands on the calling goroutine.
type inlineExec struct {
	sched *timeline.Scheduler
	err   error
}

func (e *inlineExec) Do(_ context.Context, fn func(*timeline.Scheduler)) error {
	if e.err != nil {
		return e.err
	}
	fn(e.sched)
	return nil
}

func newTestServer(t *testing.T, creds Credentials) (*Server, *inlineExec) {
	t.Helper()
	exec := &inlineExec{sched: timeline.NewScheduler()}
	cat := orchestrator.NewCatalog(orchestrator.NewActions(zerolog.Nop()), zerolog.Nop())
	cat.Put(timeline.NewDefinition("ambient", 30, nil, nil))
	cat.Put(timeline.NewDefinition("finale", 10, nil, nil))
	rt := orchestrator.NewRuntime(exec, cat, nil)

	srv := NewServer(Options{
		RoomName: "crypt",
		Control:  rt,
		Auth:     creds,
		Logger:   zerolog.Nop(),
	})
	return srv, exec
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// waitFor polls a condition until it returns true or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("timeout waiting for: %s", msg)
}
