package driver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

// stepClock advances by a fixed step on every reading.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func startLoop(t *testing.T, opts Options) (*Loop, context.CancelFunc, chan error) {
	t.Helper()
	opts.Logger = zerolog.Nop()
	l := New(timeline.NewScheduler(), opts)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !l.Running() {
		if time.Now().After(deadline) {
			t.Fatal("loop did not start")
		}
		time.Sleep(time.Millisecond)
	}
	return l, cancel, errCh
}

func waitErr(t *testing.T, errCh chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("loop did not exit")
		return nil
	}
}

func TestDoBeforeRun(t *testing.T) {
	l := New(timeline.NewScheduler(), Options{})
	err := l.Do(context.Background(), func(*timeline.Scheduler) {})
	if !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestRunCompletesInstance(t *testing.T) {
	clk := &stepClock{t: time.Unix(0, 0), step: 100 * time.Millisecond}
	l, cancel, errCh := startLoop(t, Options{TickRate: 500, Clock: clk.Now})
	defer cancel()

	done := make(chan float64, 1)
	def := timeline.NewDefinition("short", 0.5, nil, nil)
	err := l.Do(context.Background(), func(s *timeline.Scheduler) {
		ctx := s.StartInstance(def, nil)
		ctx.OnCompleted(func(c *timeline.Context) { done <- c.ElapsedTime() })
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case elapsed := <-done:
		if elapsed < 0.5 {
			t.Errorf("expected elapsed >= 0.5, got %v", elapsed)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("instance did not complete")
	}

	cancel()
	if err := waitErr(t, errCh); err != nil {
		t.Errorf("expected nil on cancel, got %v", err)
	}
	if l.Ticks() == 0 {
		t.Error("expected ticks to be counted")
	}
	if err := l.Do(context.Background(), func(*timeline.Scheduler) {}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped after exit, got %v", err)
	}
}

func TestRunClampsDelta(t *testing.T) {
	clk := &stepClock{t: time.Unix(0, 0), step: 10 * time.Second}
	l, cancel, errCh := startLoop(t, Options{TickRate: 500, MaxDelta: 250 * time.Millisecond, Clock: clk.Now})
	defer cancel()

	seen := make(chan float64, 64)
	def := timeline.NewDefinition("long", 100, nil, []timeline.Clip{{
		TotalTicks:   1000,
		TickInterval: 0.25,
		Handler: timeline.ClipFuncs{Tick: func(c *timeline.Context) {
			select {
			case seen <- c.ElapsedTime():
			default:
			}
		}},
	}})
	_ = l.Do(context.Background(), func(s *timeline.Scheduler) { s.StartInstance(def, nil) })

	var first float64
	select {
	case first = <-seen:
	case <-time.After(3 * time.Second):
		t.Fatal("no clip tick observed")
	}
	if first > 0.5+1e-9 {
		t.Errorf("expected clamped deltas, first tick at elapsed %v", first)
	}

	cancel()
	waitErr(t, errCh)
}

func TestCancelShutsDownInstances(t *testing.T) {
	l, cancel, errCh := startLoop(t, Options{TickRate: 100})

	stopped := make(chan struct{})
	def := timeline.NewDefinition("forever", 1e9, nil, nil)
	_ = l.Do(context.Background(), func(s *timeline.Scheduler) {
		s.StartInstance(def, nil).OnStopped(func(*timeline.Context) { close(stopped) })
	})
	if l.Live() != 1 {
		t.Errorf("expected 1 live instance, got %d", l.Live())
	}

	cancel()
	waitErr(t, errCh)
	select {
	case <-stopped:
	default:
		t.Error("expected instance stopped on shutdown")
	}
	if l.Live() != 0 {
		t.Errorf("expected 0 live after shutdown, got %d", l.Live())
	}
}

func TestTickPanicEndsRun(t *testing.T) {
	l, cancel, errCh := startLoop(t, Options{TickRate: 200})
	defer cancel()

	def := timeline.NewDefinition("boom", 10, []timeline.Node{
		timeline.NodeFunc{At: 0, Fn: func(*timeline.Context) { panic("node exploded") }},
	}, nil)
	_ = l.Do(context.Background(), func(s *timeline.Scheduler) { s.StartInstance(def, nil) })

	err := waitErr(t, errCh)
	if err == nil || !strings.Contains(err.Error(), "node exploded") {
		t.Errorf("expected tick panic error, got %v", err)
	}
}

func TestRunTwice(t *testing.T) {
	l, cancel, errCh := startLoop(t, Options{})
	if err := l.Run(context.Background()); err == nil {
		t.Error("expected error for second Run")
	}
	cancel()
	waitErr(t, errCh)
}

func TestDoHonoursContext(t *testing.T) {
	l, cancel, errCh := startLoop(t, Options{TickRate: 100})
	defer func() {
		cancel()
		waitErr(t, errCh)
	}()

	block := make(chan struct{})
	go func() {
		_ = l.Do(context.Background(), func(*timeline.Scheduler) { <-block })
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancelDo := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelDo()
	if err := l.Do(ctx, func(*timeline.Scheduler) {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	close(block)
}

func TestStep(t *testing.T) {
	sched := timeline.NewScheduler()
	l := New(sched, Options{MaxDelta: time.Second})

	ctx := sched.StartInstance(timeline.NewDefinition("a", 2, nil, nil), nil)
	if err := l.Step(5 * time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.ElapsedTime() != 1 {
		t.Errorf("expected clamped step of 1s, got %v", ctx.ElapsedTime())
	}
	if err := l.Step(-time.Second); err != nil || ctx.ElapsedTime() != 1 {
		t.Errorf("expected negative step to be a no-op, got elapsed %v err %v", ctx.ElapsedTime(), err)
	}
	_ = l.Step(time.Second)
	if !ctx.Completed() || l.Live() != 0 || l.Ticks() != 3 {
		t.Errorf("expected completion after 3 steps, completed=%v live=%d ticks=%d", ctx.Completed(), l.Live(), l.Ticks())
	}

	sched.StartInstance(timeline.NewDefinition("boom", 1, []timeline.Node{
		timeline.NodeFunc{Fn: func(*timeline.Context) { panic("bad") }},
	}, nil), nil)
	if err := l.Step(time.Millisecond); err == nil {
		t.Error("expected panic to surface as error")
	}
}

func TestStepWhileRunning(t *testing.T) {
	l, cancel, errCh := startLoop(t, Options{})
	if err := l.Step(time.Millisecond); !errors.Is(err, ErrRunning) {
		t.Errorf("expected ErrRunning, got %v", err)
	}
	cancel()
	waitErr(t, errCh)
}
