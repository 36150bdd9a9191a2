package loop

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Supervisor maintains a set of Loops and reconciles their count to a
// target drawn from configuration. Reconciliation never blocks: spawning
// starts goroutines, stopping only flips the sentinel delay and lets each
// loop wind down on its own schedule. Loops are run with context.Background()
// rather than any context the Supervisor itself could cancel: stopping the
// Supervisor must never forcibly wake a sleeping loop or abort an in-flight
// cycle (see Loop.Run) — reconciliation owns its own lifecycle independently
// of whatever cancellation the process's own shutdown path does elsewhere.
type Supervisor struct {
	mu      sync.Mutex
	loops   map[string]*Loop
	counter atomic.Uint64

	target int
	cycle  CycleFunc
}

// NewSupervisor constructs a Supervisor bound to cycle, with no loops
// running yet.
func NewSupervisor(cycle CycleFunc) *Supervisor {
	return &Supervisor{
		loops: map[string]*Loop{},
		cycle: cycle,
	}
}

// SetTarget updates the desired loop count and immediately reconciles
// toward it.
func (s *Supervisor) SetTarget(n int) {
	s.mu.Lock()
	s.target = n
	s.mu.Unlock()
	s.Reconcile()
}

// Target reports the current desired loop count.
func (s *Supervisor) Target() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Running reports how many loops are currently counted as running —
// including ones in the "stopping" state, which are still draining their
// last cycle.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.loops {
		if l.State() != StateStopped {
			n++
		}
	}
	return n
}

// Reconcile prunes terminated loops, then spawns or stops loops so the
// running count matches the target: max(0, target - running) new loops are
// spawned, or running - target are stopped from the tail.
func (s *Supervisor) Reconcile() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, l := range s.loops {
		if l.State() == StateStopped {
			delete(s.loops, name)
		}
	}

	running := 0
	var runningNames []string
	for name, l := range s.loops {
		if l.State() != StateStopped {
			running++
			runningNames = append(runningNames, name)
		}
	}

	if running < s.target {
		for i := 0; i < s.target-running; i++ {
			s.spawnLocked()
		}
		return
	}

	if running > s.target {
		// Names are "loop-<n>" with n rising, so ordering by length and
		// then lexically puts them in spawn order; the tail is the newest.
		sort.Slice(runningNames, func(i, j int) bool {
			if len(runningNames[i]) != len(runningNames[j]) {
				return len(runningNames[i]) < len(runningNames[j])
			}
			return runningNames[i] < runningNames[j]
		})
		toStop := running - s.target
		for i := 0; i < toStop && i < len(runningNames); i++ {
			s.loops[runningNames[len(runningNames)-1-i]].Stop()
		}
	}
}

func (s *Supervisor) spawnLocked() {
	id := s.counter.Add(1)
	name := fmt.Sprintf("loop-%d", id)
	l := New(name, s.cycle, nil)
	s.loops[name] = l
	log.Info().Str("loop", name).Msg("supervisor: starting loop")
	go l.Run(context.Background())
}

// Stop reconciles the target to zero. Each running loop observes the
// sentinel on its own next natural wakeup; Stop does not force any of them
// to wake early or abort a cycle in progress.
func (s *Supervisor) Stop() {
	s.SetTarget(0)
}
