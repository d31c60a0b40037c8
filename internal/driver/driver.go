// Package driver owns a timeline scheduler on a single goroutine and ticks
// it at a fixed rate with wall-clock deltas.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

// ErrStopped is returned by Do when the loop is not running.
var ErrStopped = errors.New("driver is not running")

// ErrRunning is returned by Step while Run is active.
var ErrRunning = errors.New("driver is running")

const defaultTickRate = 60

// Options configures a Loop.
type Options struct {
	// TickRate is ticks per second. Defaults to 60.
	TickRate float64
	// MaxDelta caps the delta handed to a single tick. Zero means no cap.
	MaxDelta time.Duration
	// Clock supplies the time deltas are measured with. Defaults to time.Now.
	Clock  func() time.Time
	Logger zerolog.Logger
}

type command struct {
	fn   func(*timeline.Scheduler)
	done chan struct{}
}

// Loop drives a Scheduler. All access to the scheduler happens on the Run
// goroutine; other goroutines go through Do.
type Loop struct {
	sched  *timeline.Scheduler
	opts   Options
	log    zerolog.Logger
	cmds   chan command
	exited chan struct{}

	started atomic.Bool
	running atomic.Bool
	ticks   atomic.Uint64
	live    atomic.Int64
}

// New creates a loop around sched. The loop can be run once.
func New(sched *timeline.Scheduler, opts Options) *Loop {
	if !(opts.TickRate > 0) {
		opts.TickRate = defaultTickRate
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Loop{
		sched:  sched,
		opts:   opts,
		log:    opts.Logger,
		cmds:   make(chan command),
		exited: make(chan struct{}),
	}
}

// Ticks returns the number of ticks performed.
func (l *Loop) Ticks() uint64 { return l.ticks.Load() }

// Live returns the number of live instances as of the last tick or command.
func (l *Loop) Live() int { return int(l.live.Load()) }

// Running reports whether Run is active.
func (l *Loop) Running() bool { return l.running.Load() }

// Run ticks the scheduler until ctx is cancelled, then shuts every live
// instance down and returns nil. A panic escaping a tick or a command ends
// the loop and is returned as an error.
func (l *Loop) Run(ctx context.Context) (err error) {
	if !l.started.CompareAndSwap(false, true) {
		return errors.New("driver: Run called more than once")
	}
	l.running.Store(true)
	defer func() {
		l.running.Store(false)
		close(l.exited)
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
			l.log.Error().Err(err).Msg("timeline driver stopped")
		}
	}()

	period := time.Duration(float64(time.Second) / l.opts.TickRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	l.log.Info().Float64("tick_rate_hz", l.opts.TickRate).Dur("max_delta", l.opts.MaxDelta).Msg("timeline driver started")

	last := l.opts.Clock()
	for {
		select {
		case <-ctx.Done():
			l.sched.Shutdown()
			l.live.Store(0)
			l.log.Info().Uint64("ticks", l.Ticks()).Msg("timeline driver stopped")
			return nil

		case cmd := <-l.cmds:
			cmd.fn(l.sched)
			l.live.Store(int64(l.sched.Len()))
			close(cmd.done)

		case <-ticker.C:
			now := l.opts.Clock()
			dt := now.Sub(last)
			last = now
			l.tick(l.clamp(dt))
		}
	}
}

func (l *Loop) clamp(dt time.Duration) time.Duration {
	if dt < 0 {
		return 0
	}
	if l.opts.MaxDelta > 0 && dt > l.opts.MaxDelta {
		return l.opts.MaxDelta
	}
	return dt
}

func (l *Loop) tick(dt time.Duration) {
	l.sched.Tick(dt.Seconds())
	l.ticks.Add(1)
	l.live.Store(int64(l.sched.Len()))
}

// Do runs fn on the loop goroutine between ticks and waits for it.
func (l *Loop) Do(ctx context.Context, fn func(*timeline.Scheduler)) error {
	if !l.running.Load() {
		return ErrStopped
	}
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case l.cmds <- cmd:
	case <-l.exited:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-l.exited:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Step performs one tick of dt synchronously. It is meant for tests and
// tools that drive the scheduler by hand, and fails while Run is active.
func (l *Loop) Step(dt time.Duration) (err error) {
	if l.running.Load() {
		return ErrRunning
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()
	l.tick(l.clamp(dt))
	return nil
}
