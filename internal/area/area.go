// Package area persists automation rules: one trigger (action) wired to one
// effect (reaction), owned by a user.
package area

import (
	"errors"
	"time"

	"github.com/Jocelyn-JE/AREA-51/internal/service"
)

// ErrNotFound reports a lookup for a rule that does not exist.
var ErrNotFound = errors.New("area not found")

// Area is one automation rule. Service/name pairs reference the provider
// registry; params are stored as opaque JSON and interpreted by the provider
// at execution time.
type Area struct {
	ID     string
	UserID string

	ActionService string
	ActionName    string
	ActionParams  service.Params

	ReactionService string
	ReactionName    string
	ReactionParams  service.Params

	Enabled   bool
	CreatedAt time.Time
	// LastTriggered is zero until the rule completes a full fire cycle.
	LastTriggered time.Time
}

// LastTriggeredAt returns the last firing as a pointer, nil when the rule has
// never fired. Execution contexts use the pointer form.
func (a Area) LastTriggeredAt() *time.Time {
	if a.LastTriggered.IsZero() {
		return nil
	}
	t := a.LastTriggered
	return &t
}

// Filter narrows Find. Nil/zero fields match everything.
type Filter struct {
	UserID  string
	Enabled *bool
}

// EnabledOnly is the sweep's filter: every enabled rule across all users.
func EnabledOnly() Filter {
	yes := true
	return Filter{Enabled: &yes}
}
