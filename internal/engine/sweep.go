package engine

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Jocelyn-JE/AREA-51/internal/area"
	"github.com/Jocelyn-JE/AREA-51/internal/metrics"
	logx "github.com/Jocelyn-JE/AREA-51/pkg/logx"
)

// SweepStats summarizes one sweep over all enabled rules.
type SweepStats struct {
	Evaluated int
	Fired     int
	Errors    int
	Elapsed   time.Duration
}

// Sweep evaluates every enabled rule once, in fixed-size concurrent batches.
// One misbehaving rule never takes down the sweep: errors and panics are
// logged and counted, then the sweep moves on.
func (e *Engine) Sweep(ctx context.Context) (SweepStats, error) {
	start := time.Now()

	areas, err := e.areas.Find(ctx, area.EnabledOnly())
	if err != nil {
		return SweepStats{}, err
	}

	var (
		mu    sync.Mutex
		stats = SweepStats{Evaluated: len(areas)}
	)
	for offset := 0; offset < len(areas); offset += e.cfg.BatchSize {
		if ctx.Err() != nil {
			break
		}
		end := offset + e.cfg.BatchSize
		if end > len(areas) {
			end = len(areas)
		}

		var wg sync.WaitGroup
		for _, a := range areas[offset:end] {
			wg.Add(1)
			go func(a area.Area) {
				defer wg.Done()
				outcome := e.evaluateOne(ctx, a)
				mu.Lock()
				switch outcome {
				case OutcomeFired:
					stats.Fired++
				case outcomeError:
					stats.Errors++
				}
				mu.Unlock()
			}(a)
		}
		wg.Wait()
	}

	stats.Elapsed = time.Since(start)
	metrics.SweepsTotal.Inc()
	metrics.SweepDuration.Observe(stats.Elapsed.Seconds())
	e.log.Debug("sweep complete",
		logx.Int("evaluated", stats.Evaluated),
		logx.Int("fired", stats.Fired),
		logx.Int("errors", stats.Errors),
		logx.Duration("elapsed", stats.Elapsed))
	return stats, nil
}

// outcomeError is sweep-internal; ExecuteArea reports errors via its error
// return instead.
const outcomeError Outcome = "error"

func (e *Engine) evaluateOne(ctx context.Context, a area.Area) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = outcomeError
			metrics.AreasEvaluated.WithLabelValues("panic").Inc()
			e.log.Error("rule evaluation panicked",
				logx.String("area", a.ID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	out, err := e.executeArea(ctx, a)
	if err != nil {
		metrics.AreasEvaluated.WithLabelValues("error").Inc()
		e.log.Warn("rule evaluation failed",
			logx.String("area", a.ID),
			logx.String("user", a.UserID),
			logx.String("action", a.ActionService+"."+a.ActionName),
			logx.Err(err))
		return outcomeError
	}
	switch out {
	case OutcomeFired:
		metrics.AreasEvaluated.WithLabelValues("fired").Inc()
		e.log.Info("rule fired",
			logx.String("area", a.ID),
			logx.String("user", a.UserID),
			logx.String("action", a.ActionService+"."+a.ActionName),
			logx.String("reaction", a.ReactionService+"."+a.ReactionName))
	default:
		metrics.AreasEvaluated.WithLabelValues("idle").Inc()
	}
	return out
}
