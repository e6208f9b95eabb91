package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Jocelyn-JE/AREA-51/internal/area"
	"github.com/Jocelyn-JE/AREA-51/internal/service"
	logx "github.com/Jocelyn-JE/AREA-51/pkg/logx"
)

func TestSweepEvaluatesOnlyEnabled(t *testing.T) {
	t.Parallel()

	reg, rec := buildRegistry(t, true, nil, nil)

	enabled := sampleRule("a1")
	disabled := sampleRule("a2")
	disabled.Enabled = false
	store := newFakeStore(enabled, disabled)
	e := newEngine(store, reg)

	stats, err := e.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Evaluated)
	require.Equal(t, 1, stats.Fired)
	require.Zero(t, stats.Errors)
	require.Len(t, rec.all(), 1)

	_, marked := store.triggeredAt("a2")
	require.False(t, marked)
}

func TestSweepIsolatesFailures(t *testing.T) {
	t.Parallel()

	var fired atomic.Int32
	trig := service.NewBase("Trigger", "",
		[]service.Action{
			{
				ActionDefinition: service.ActionDefinition{Name: "ok"},
				Run: func(ctx context.Context, params service.Params, ec service.Context) (service.Trigger, error) {
					return service.FireWith(nil), nil
				},
			},
			{
				ActionDefinition: service.ActionDefinition{Name: "fail"},
				Run: func(ctx context.Context, params service.Params, ec service.Context) (service.Trigger, error) {
					return service.NoFire(), errors.New("api down")
				},
			},
			{
				ActionDefinition: service.ActionDefinition{Name: "explode"},
				Run: func(ctx context.Context, params service.Params, ec service.Context) (service.Trigger, error) {
					panic("boom")
				},
			},
		}, nil)
	notify := service.NewBase("Notify", "", nil,
		[]service.Reaction{{ReactionDefinition: service.ReactionDefinition{Name: "send"},
			Run: func(ctx context.Context, params service.Params, ec service.Context) error {
				fired.Add(1)
				return nil
			}}})
	reg := service.NewRegistry()
	require.NoError(t, reg.Register(&trig))
	require.NoError(t, reg.Register(&notify))

	mk := func(id, action string) area.Area {
		a := sampleRule(id)
		a.ActionName = action
		a.ActionParams = nil
		return a
	}
	store := newFakeStore(mk("ok1", "ok"), mk("bad1", "fail"), mk("bad2", "explode"), mk("ok2", "ok"))
	e := newEngine(store, reg)

	stats, err := e.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, stats.Evaluated)
	require.Equal(t, 2, stats.Fired)
	require.Equal(t, 2, stats.Errors)
	require.Equal(t, int32(2), fired.Load())
}

func TestSweepBatchesConcurrency(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	trig := service.NewBase("Trigger", "",
		[]service.Action{{
			ActionDefinition: service.ActionDefinition{Name: "check"},
			Run: func(ctx context.Context, params service.Params, ec service.Context) (service.Trigger, error) {
				mu.Lock()
				current++
				if current > peak {
					peak = current
				}
				mu.Unlock()
				time.Sleep(10 * time.Millisecond)
				mu.Lock()
				current--
				mu.Unlock()
				return service.NoFire(), nil
			},
		}}, nil)
	notify := service.NewBase("Notify", "", nil,
		[]service.Reaction{{ReactionDefinition: service.ReactionDefinition{Name: "send"},
			Run: func(ctx context.Context, params service.Params, ec service.Context) error { return nil }}})
	reg := service.NewRegistry()
	require.NoError(t, reg.Register(&trig))
	require.NoError(t, reg.Register(&notify))

	var rules []area.Area
	for i := 0; i < 7; i++ {
		a := sampleRule("a" + string(rune('0'+i)))
		a.ActionParams = nil
		rules = append(rules, a)
	}
	store := newFakeStore(rules...)
	e := New(store, fakeTokens{}, reg, Config{BatchSize: 3, CallTimeout: time.Second}, logx.Nop())

	stats, err := e.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, stats.Evaluated)

	mu.Lock()
	defer mu.Unlock()
	require.LessOrEqual(t, peak, 3)
	require.GreaterOrEqual(t, peak, 2)
}

func TestSweepPropagatesListError(t *testing.T) {
	t.Parallel()

	reg, _ := buildRegistry(t, true, nil, nil)
	store := newFakeStore()
	store.findErr = errors.New("db locked")
	e := newEngine(store, reg)

	_, err := e.Sweep(context.Background())
	require.ErrorContains(t, err, "db locked")
}
