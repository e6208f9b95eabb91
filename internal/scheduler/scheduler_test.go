package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Jocelyn-JE/AREA-51/internal/engine"
	logx "github.com/Jocelyn-JE/AREA-51/pkg/logx"
)

type countingSweeper struct {
	calls atomic.Int32
	delay time.Duration
}

func (c *countingSweeper) Sweep(ctx context.Context) (engine.SweepStats, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
		}
	}
	return engine.SweepStats{}, nil
}

func TestSchedulerRunsImmediatelyAndPeriodically(t *testing.T) {
	t.Parallel()

	sw := &countingSweeper{}
	s := New(sw, Config{Interval: 100 * time.Millisecond}, logx.Nop())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sw.calls.Load() >= 3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("sweeps = %d, want at least 3 (immediate + ticks)", sw.calls.Load())
}

func TestSchedulerSkipsOverlappingSweeps(t *testing.T) {
	t.Parallel()

	// Sweep takes much longer than the interval; ticks during it must be
	// dropped rather than stacked.
	sw := &countingSweeper{delay: 500 * time.Millisecond}
	s := New(sw, Config{Interval: 50 * time.Millisecond}, logx.Nop())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(400 * time.Millisecond)
	s.Stop()

	if got := sw.calls.Load(); got > 2 {
		t.Fatalf("sweeps = %d, want at most 2 while one is in flight", got)
	}
}

func TestSchedulerStopWaitsForSweep(t *testing.T) {
	t.Parallel()

	sw := &countingSweeper{delay: 200 * time.Millisecond}
	s := New(sw, Config{Interval: time.Hour}, logx.Nop())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	if got := sw.calls.Load(); got != 1 {
		t.Fatalf("sweeps = %d, want exactly 1", got)
	}
}
