// Package engine evaluates automation rules: it resolves providers, builds
// the per-rule execution context, runs the trigger check and, on a firing,
// the reaction. The sweep in sweep.go drives it over every enabled rule.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Jocelyn-JE/AREA-51/internal/area"
	"github.com/Jocelyn-JE/AREA-51/internal/metrics"
	"github.com/Jocelyn-JE/AREA-51/internal/service"
	logx "github.com/Jocelyn-JE/AREA-51/pkg/logx"
)

var (
	// ErrServiceNotFound reports a rule referencing an unregistered provider.
	ErrServiceNotFound = errors.New("service not found")
	// ErrAreaDisabled reports a direct execution request for a disabled rule.
	ErrAreaDisabled = errors.New("area is disabled")
)

// AreaStore is the slice of the rule repository the engine needs.
type AreaStore interface {
	Get(ctx context.Context, id string) (area.Area, error)
	Find(ctx context.Context, f area.Filter) ([]area.Area, error)
	MarkTriggered(ctx context.Context, id string, at time.Time) error
}

// TokenSource yields fresh access tokens per credential service for a user.
type TokenSource interface {
	FreshAccessTokens(ctx context.Context, userID string) (map[string]string, error)
}

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	// BatchSize is how many rules one sweep batch evaluates concurrently.
	BatchSize int
	// CallTimeout bounds each action check and each reaction execution.
	CallTimeout time.Duration
}

const (
	defaultBatchSize   = 10
	defaultCallTimeout = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	return c
}

// Engine executes rules. Safe for concurrent use.
type Engine struct {
	areas    AreaStore
	tokens   TokenSource
	registry *service.Registry
	cfg      Config
	log      logx.Logger
}

func New(areas AreaStore, tokens TokenSource, registry *service.Registry, cfg Config, log logx.Logger) *Engine {
	return &Engine{
		areas:    areas,
		tokens:   tokens,
		registry: registry,
		cfg:      cfg.withDefaults(),
		log:      log.With(logx.String("component", "engine")),
	}
}

// Outcome of one rule evaluation.
type Outcome string

const (
	OutcomeFired Outcome = "fired"
	OutcomeIdle  Outcome = "idle"
)

// ExecuteArea runs one full evaluation cycle for the rule with the given ID:
// trigger check, and on a firing the reaction followed by the lastTriggered
// advance. The reaction result is the rule's result; lastTriggered moves only
// after the reaction succeeded, so a failed effect is retried next sweep.
func (e *Engine) ExecuteArea(ctx context.Context, areaID string) (Outcome, error) {
	a, err := e.areas.Get(ctx, areaID)
	if err != nil {
		return OutcomeIdle, err
	}
	if !a.Enabled {
		return OutcomeIdle, fmt.Errorf("%w: %s", ErrAreaDisabled, areaID)
	}
	return e.executeArea(ctx, a)
}

func (e *Engine) executeArea(ctx context.Context, a area.Area) (Outcome, error) {
	actionProvider, ok := e.registry.Get(a.ActionService)
	if !ok {
		return OutcomeIdle, fmt.Errorf("%w: action service %q", ErrServiceNotFound, a.ActionService)
	}
	if _, ok := e.registry.Get(a.ReactionService); !ok {
		return OutcomeIdle, fmt.Errorf("%w: reaction service %q", ErrServiceNotFound, a.ReactionService)
	}

	tokens, err := e.tokens.FreshAccessTokens(ctx, a.UserID)
	if err != nil {
		return OutcomeIdle, fmt.Errorf("load tokens for user %s: %w", a.UserID, err)
	}
	ec := service.Context{
		UserID:        a.UserID,
		Tokens:        tokens,
		LastTriggered: a.LastTriggeredAt(),
	}

	trigger, err := e.runAction(ctx, actionProvider, a, ec)
	if err != nil {
		return OutcomeIdle, fmt.Errorf("action %s.%s: %w", a.ActionService, a.ActionName, err)
	}
	if !trigger.Fired() {
		return OutcomeIdle, nil
	}

	reactionParams := a.ReactionParams
	if trigger.Payload() != nil {
		reactionParams = a.ReactionParams.Merge(service.Params{service.TriggerDataKey: trigger.Payload()})
	}
	if err := e.ExecuteReaction(ctx, a.ReactionService, a.ReactionName, reactionParams, ec); err != nil {
		metrics.ReactionsTotal.WithLabelValues("error").Inc()
		return OutcomeIdle, fmt.Errorf("reaction %s.%s: %w", a.ReactionService, a.ReactionName, err)
	}
	metrics.ReactionsTotal.WithLabelValues("ok").Inc()

	if err := e.areas.MarkTriggered(ctx, a.ID, time.Now().UTC()); err != nil {
		return OutcomeFired, fmt.Errorf("mark triggered: %w", err)
	}
	return OutcomeFired, nil
}

func (e *Engine) runAction(ctx context.Context, p service.Provider, a area.Area, ec service.Context) (service.Trigger, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	return p.ExecuteAction(ctx, a.ActionName, a.ActionParams, ec)
}

// ExecuteReaction runs one effect directly. Unknown service and unknown
// reaction are reported as distinct errors.
func (e *Engine) ExecuteReaction(ctx context.Context, svc, name string, params service.Params, ec service.Context) error {
	p, ok := e.registry.Get(svc)
	if !ok {
		return fmt.Errorf("%w: %q", ErrServiceNotFound, svc)
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	return p.ExecuteReaction(ctx, name, params, ec)
}

// ValidateArea checks a rule against the registered capability catalogue and
// returns every problem found, not just the first: unknown services, unknown
// action/reaction names, and missing required parameters.
func (e *Engine) ValidateArea(a area.Area) []string {
	var problems []string

	if ap, ok := e.registry.Get(a.ActionService); !ok {
		problems = append(problems, fmt.Sprintf("unknown action service %q", a.ActionService))
	} else if action, ok := ap.Action(a.ActionName); !ok {
		problems = append(problems, fmt.Sprintf("service %q has no action %q", a.ActionService, a.ActionName))
	} else {
		for _, name := range service.MissingRequired(action.Parameters, a.ActionParams) {
			problems = append(problems, fmt.Sprintf("action %s.%s: missing required parameter %q", a.ActionService, a.ActionName, name))
		}
	}

	if rp, ok := e.registry.Get(a.ReactionService); !ok {
		problems = append(problems, fmt.Sprintf("unknown reaction service %q", a.ReactionService))
	} else if reaction, ok := rp.Reaction(a.ReactionName); !ok {
		problems = append(problems, fmt.Sprintf("service %q has no reaction %q", a.ReactionService, a.ReactionName))
	} else {
		for _, name := range service.MissingRequired(reaction.Parameters, a.ReactionParams) {
			problems = append(problems, fmt.Sprintf("reaction %s.%s: missing required parameter %q", a.ReactionService, a.ReactionName, name))
		}
	}

	return problems
}
