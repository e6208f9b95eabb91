// Package service defines the capability-provider contract: the typed
// parameter schemas, the trigger/effect function shapes, and the registry the
// execution engine resolves providers from.
//
// A provider is a thin client over one third-party API. It declares actions
// (trigger checks) and reactions (effects) and never holds credentials of its
// own: the access token for each invocation arrives in the execution Context,
// built fresh by the credential store.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TriggerDataKey is the reserved key under which a fired action's payload is
// merged into the reaction parameters.
const TriggerDataKey = "triggerData"

var (
	ErrActionNotFound   = errors.New("action not found")
	ErrReactionNotFound = errors.New("reaction not found")
)

// Trigger is the outcome of an action check: either the condition did not
// hold, or it fired with an opaque payload for the reaction.
type Trigger struct {
	fired   bool
	payload any
}

// NoFire reports that the trigger condition did not hold this cycle.
func NoFire() Trigger { return Trigger{} }

// FireWith reports that the trigger condition held, carrying the data the
// reaction may reference (e.g. the message that caused the firing).
func FireWith(payload any) Trigger { return Trigger{fired: true, payload: payload} }

func (t Trigger) Fired() bool  { return t.fired }
func (t Trigger) Payload() any { return t.payload }

// Context carries the per-evaluation execution state. It is rebuilt for every
// rule evaluation and must never be cached by a provider: the credential
// store is the sole source of token freshness.
type Context struct {
	UserID string

	// Tokens maps credential service name -> current access token. Keys are
	// account-level services ("google", "github", "microsoft", ...); Gmail
	// and Google Drive share the "google" entry.
	Tokens map[string]string

	// LastTriggered is the rule's last successful firing, if any. Actions use
	// it as the lower bound for "new since" checks.
	LastTriggered *time.Time
}

// Token returns the access token for a credential service. A missing entry
// means the user has not authorized that integration.
func (c Context) Token(svc string) (string, bool) {
	tok, ok := c.Tokens[svc]
	return tok, ok
}

// ActionFunc checks a trigger condition. Transient integration errors must be
// reported as NoFire (the rule retries next sweep); a missing required
// credential must be returned as an error so the failure stays visible.
type ActionFunc func(ctx context.Context, params Params, ec Context) (Trigger, error)

// ReactionFunc performs an effect. Errors propagate so the sweep logs them
// and the rule's lastTriggered is not advanced.
type ReactionFunc func(ctx context.Context, params Params, ec Context) error

// Action pairs a definition with its executable check.
type Action struct {
	ActionDefinition
	Run ActionFunc
}

// Reaction pairs a definition with its executable effect.
type Reaction struct {
	ReactionDefinition
	Run ReactionFunc
}

// Provider is one integrated third-party service.
//
// Implementations are constructed once at process start, registered into the
// Registry and never mutated afterwards; all methods must be safe for
// concurrent use.
type Provider interface {
	// Name is the unique, user-visible capability name ("Gmail", "GitHub").
	Name() string

	// AuthService is the credential service this provider draws its token
	// from ("google", "github", ...). Empty means no credential is needed.
	AuthService() string

	// Initialize performs one-time setup (network warm-up etc). It is called
	// exactly once, concurrently with other providers' Initialize; a failure
	// is fatal at startup.
	Initialize(ctx context.Context) error

	Actions() []ActionDefinition
	Reactions() []ReactionDefinition

	Action(name string) (Action, bool)
	Reaction(name string) (Reaction, bool)

	ExecuteAction(ctx context.Context, name string, params Params, ec Context) (Trigger, error)
	ExecuteReaction(ctx context.Context, name string, params Params, ec Context) error
}

// Base is the common immutable core concrete providers embed. It implements
// everything except domain-specific Initialize (the embedded default is a
// no-op).
type Base struct {
	name        string
	authService string
	actions     []Action
	reactions   []Reaction
	actionIdx   map[string]int
	reactionIdx map[string]int
}

func NewBase(name, authService string, actions []Action, reactions []Reaction) Base {
	b := Base{
		name:        name,
		authService: authService,
		actions:     actions,
		reactions:   reactions,
		actionIdx:   make(map[string]int, len(actions)),
		reactionIdx: make(map[string]int, len(reactions)),
	}
	for i, a := range actions {
		b.actionIdx[a.Name] = i
	}
	for i, r := range reactions {
		b.reactionIdx[r.Name] = i
	}
	return b
}

func (b *Base) Name() string        { return b.name }
func (b *Base) AuthService() string { return b.authService }

func (b *Base) Initialize(ctx context.Context) error { return nil }

func (b *Base) Actions() []ActionDefinition {
	defs := make([]ActionDefinition, len(b.actions))
	for i, a := range b.actions {
		defs[i] = a.ActionDefinition
	}
	return defs
}

func (b *Base) Reactions() []ReactionDefinition {
	defs := make([]ReactionDefinition, len(b.reactions))
	for i, r := range b.reactions {
		defs[i] = r.ReactionDefinition
	}
	return defs
}

func (b *Base) Action(name string) (Action, bool) {
	i, ok := b.actionIdx[name]
	if !ok {
		return Action{}, false
	}
	return b.actions[i], true
}

func (b *Base) Reaction(name string) (Reaction, bool) {
	i, ok := b.reactionIdx[name]
	if !ok {
		return Reaction{}, false
	}
	return b.reactions[i], true
}

func (b *Base) ExecuteAction(ctx context.Context, name string, params Params, ec Context) (Trigger, error) {
	a, ok := b.Action(name)
	if !ok {
		return NoFire(), fmt.Errorf("%w: %q in service %q", ErrActionNotFound, name, b.name)
	}
	return a.Run(ctx, params, ec)
}

func (b *Base) ExecuteReaction(ctx context.Context, name string, params Params, ec Context) error {
	r, ok := b.Reaction(name)
	if !ok {
		return fmt.Errorf("%w: %q in service %q", ErrReactionNotFound, name, b.name)
	}
	return r.Run(ctx, params, ec)
}
