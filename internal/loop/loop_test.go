package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopRunsUntilStopped(t *testing.T) {
	var cycles atomic.Int32
	var doneFired atomic.Int32

	l := New("test-loop", func(ctx context.Context, name string) time.Duration {
		n := cycles.Add(1)
		if n >= 3 {
			return Stopped
		}
		return time.Millisecond
	}, func() {
		doneFired.Add(1)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not terminate in time")
	}

	if cycles.Load() != 3 {
		t.Errorf("Expected exactly 3 cycles, got %d", cycles.Load())
	}
	if doneFired.Load() != 1 {
		t.Errorf("Expected done callback exactly once, got %d", doneFired.Load())
	}
	if l.State() != StateStopped {
		t.Errorf("Expected final state stopped, got %v", l.State())
	}
}

func TestLoopSurvivesPanic(t *testing.T) {
	var cycles atomic.Int32

	l := New("panicky", func(ctx context.Context, name string) time.Duration {
		n := cycles.Add(1)
		if n == 1 {
			panic("boom")
		}
		return Stopped
	}, nil)

	done := make(chan struct{})
	go func() {
		l.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not terminate in time")
	}

	if cycles.Load() != 2 {
		t.Errorf("Expected the loop to continue past a panicked cycle, got %d cycles", cycles.Load())
	}
}

func TestLoopStopIsIdempotent(t *testing.T) {
	l := New("stoppable", func(ctx context.Context, name string) time.Duration {
		return time.Hour
	}, nil)

	go l.Run(context.Background())
	time.Sleep(10 * time.Millisecond)

	l.Stop()
	l.Stop()

	if l.State() != StateStopping {
		t.Errorf("Expected state stopping while the sleeping loop has not yet woken, got %v", l.State())
	}
}
