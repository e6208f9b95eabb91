// Package token is the per-user OAuth credential store. It persists one
// record per (user, credential service) pair and keeps access tokens fresh by
// refreshing them shortly before expiry.
package token

import (
	"errors"
	"time"
)

// ErrNoToken reports that no usable credential exists for the requested user
// and service. It also surfaces when a refresh is permanently rejected and
// the stale record has been removed.
var ErrNoToken = errors.New("no token on record")

// RefreshWindow is how long before expiry a token is considered stale and
// refreshed proactively, so in-flight calls never ride an expiring token.
const RefreshWindow = 5 * time.Minute

// Token is one stored credential. Service is the account-level OAuth service
// ("google", "github", "microsoft", ...), shared by every capability provider
// that authenticates against the same account.
type Token struct {
	ID           string
	UserID       string
	Service      string
	AccessToken  string
	RefreshToken string
	// ExpiresAt is zero when the issuer reported no expiry.
	ExpiresAt time.Time
	Scopes    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the token is past (or within window of) its expiry
// at instant now. Tokens without a known expiry never expire.
func (t Token) Expired(now time.Time, window time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(window).Before(t.ExpiresAt)
}

// Usable reports whether the token can authenticate a call right now: either
// it is fresh, or it is stale but carries a refresh token.
func (t Token) Usable(now time.Time) bool {
	if t.AccessToken == "" {
		return false
	}
	if !t.Expired(now, RefreshWindow) {
		return true
	}
	return t.RefreshToken != ""
}
