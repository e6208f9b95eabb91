// Package scheduler drives the evaluation loop: one sweep immediately at
// startup, then one per configured interval. A sweep that overruns its
// interval is never overlapped; the tick is skipped instead.
package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Jocelyn-JE/AREA-51/internal/engine"
	logx "github.com/Jocelyn-JE/AREA-51/pkg/logx"
)

// Sweeper is the engine surface the scheduler drives.
type Sweeper interface {
	Sweep(ctx context.Context) (engine.SweepStats, error)
}

// Config tunes the loop.
type Config struct {
	// Interval between sweep starts. Must be positive.
	Interval time.Duration
}

// Scheduler owns the cron instance and the running flag that prevents
// overlapping sweeps.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	log      logx.Logger

	cron *cron.Cron
	// running is held for the whole duration of a sweep; TryLock in tick is
	// the overlap guard, Lock in Stop is the drain barrier.
	running sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

func New(sweeper Sweeper, cfg Config, log logx.Logger) *Scheduler {
	s := &Scheduler{
		sweeper:  sweeper,
		interval: cfg.Interval,
		log:      log.With(logx.String("component", "scheduler")),
	}
	s.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger{s.log}),
	))
	return s
}

// Start registers the interval job, runs the first sweep immediately in the
// background and starts ticking.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if _, err := s.cron.AddFunc("@every "+s.interval.String(), s.tick); err != nil {
		return err
	}

	go s.tick()
	s.cron.Start()
	s.log.Info("scheduler started", logx.Duration("interval", s.interval))
	return nil
}

// Stop halts ticking and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	// Taking the lock waits out a sweep still in tick.
	s.running.Lock()
	s.running.Unlock() //nolint:staticcheck // drain barrier, not a critical section
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) tick() {
	if !s.running.TryLock() {
		s.log.Warn("sweep still running, skipping tick")
		return
	}
	defer s.running.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	if _, err := s.sweeper.Sweep(s.ctx); err != nil {
		s.log.Error("sweep failed", logx.Err(err))
	}
}

// cronLogger adapts the structured logger to cron's interface; it only ever
// receives panic recoveries because WithChain installs Recover alone.
type cronLogger struct {
	log logx.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug(msg, logx.Any("details", keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error(msg, logx.Err(err), logx.Any("details", keysAndValues), logx.String("stack", string(debug.Stack())))
}
