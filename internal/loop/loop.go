// Package loop implements the single-threaded worker loop and the
// supervisor that reconciles how many of them are running.
package loop

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Stopped is the sentinel delay value that requests loop termination. It is
// never a valid sleep duration, so any non-negative delay returned by a
// Cycle is a normal schedule.
const Stopped = -1 * time.Millisecond

// State is a Loop's position in its state machine:
// idle -> running -> (sleeping | stopping) -> stopped.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateSleeping
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// CycleFunc runs one pipeline pass and returns the delay before the next
// one. Returning Stopped (or having the loop's delay set to Stopped between
// cycles) ends the loop.
type CycleFunc func(ctx context.Context, loopName string) time.Duration

// Loop is a long-running single-threaded actor that repeatedly invokes a
// CycleFunc, sleeping for the duration it returns between invocations.
// Uncaught panics inside a cycle are logged and the loop continues — an
// availability choice, not an oversight.
type Loop struct {
	Name string

	cycle CycleFunc
	done  func()

	delay atomic.Int64 // nanoseconds; Stopped encodes as a negative sentinel
	state atomic.Int32

	doneOnce sync.Once
}

// New constructs a Loop. done, if non-nil, fires exactly once when the loop
// reaches StateStopped.
func New(name string, cycle CycleFunc, done func()) *Loop {
	l := &Loop{
		Name:  name,
		cycle: cycle,
		done:  done,
	}
	l.state.Store(int32(StateIdle))
	return l
}

// State reports the loop's current position in its state machine.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Stop requests termination by setting the sentinel delay. It is
// idempotent and does not forcibly wake a sleeping loop — a sleeping loop
// only observes the sentinel on its next natural wakeup, per design.
func (l *Loop) Stop() {
	l.delay.Store(int64(Stopped))
	if l.State() != StateStopped {
		l.state.Store(int32(StateStopping))
	}
}

// Run drives the loop until Stop is called. It is meant to be invoked in
// its own goroutine by the Supervisor. ctx is handed to every Cycle
// invocation for the cycle's own use (outbound calls, deadlines); Run never
// cancels it and never treats its cancellation as a wake or stop signal —
// termination is driven solely by the Stopped sentinel, observed on a
// sleeping loop's next natural wakeup, so an in-flight or sleeping cycle is
// never interrupted from outside.
func (l *Loop) Run(ctx context.Context) {
	l.state.Store(int32(StateRunning))

	for {
		if time.Duration(l.delay.Load()) == Stopped {
			l.finish()
			return
		}

		delay := l.runCycleRecovered(ctx)

		if delay == Stopped {
			l.finish()
			return
		}

		l.state.Store(int32(StateSleeping))
		<-time.After(delay)
		if time.Duration(l.delay.Load()) == Stopped {
			l.finish()
			return
		}
		l.state.Store(int32(StateRunning))
	}
}

func (l *Loop) runCycleRecovered(ctx context.Context) (delay time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Str("loop", l.Name).
				Msg("loop: PANIC in cycle, continuing")
			delay = 0
		}
	}()
	return l.cycle(ctx, l.Name)
}

func (l *Loop) finish() {
	l.state.Store(int32(StateStopped))
	l.doneOnce.Do(func() {
		if l.done != nil {
			l.done()
		}
	})
}
