package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	logx "github.com/Jocelyn-JE/AREA-51/pkg/logx"
)

// RefreshCounter records refresh outcomes ("refreshed", "failed", "revoked").
// Wired to a metrics counter in production, nil-safe for tests.
type RefreshCounter func(outcome string)

// Manager mediates every credential read so callers always see a fresh
// access token. It owns the refresh flow; providers never refresh on their
// own.
type Manager struct {
	repo    *Repository
	clients map[string]*oauth2.Config // credential service -> OAuth client
	onEvent RefreshCounter
	log     logx.Logger

	// now is swappable for expiry tests.
	now func() time.Time
}

func NewManager(repo *Repository, clients map[string]*oauth2.Config, onEvent RefreshCounter, log logx.Logger) *Manager {
	return &Manager{
		repo:    repo,
		clients: clients,
		onEvent: onEvent,
		log:     log,
		now:     time.Now,
	}
}

func (m *Manager) count(outcome string) {
	if m.onEvent != nil {
		m.onEvent(outcome)
	}
}

// StoreToken records a credential obtained by the outer authorization flow.
func (m *Manager) StoreToken(ctx context.Context, t Token) (Token, error) {
	if t.UserID == "" || t.Service == "" || t.AccessToken == "" {
		return Token{}, errors.New("user, service and access token are required")
	}
	return m.repo.Upsert(ctx, t)
}

// Token returns a fresh access token for one user and credential service,
// refreshing the stored record first when it is within RefreshWindow of
// expiry.
func (m *Manager) Token(ctx context.Context, userID, service string) (string, error) {
	t, err := m.repo.Get(ctx, userID, service)
	if err != nil {
		return "", err
	}
	t, err = m.RefreshIfNeeded(ctx, t)
	if err != nil {
		return "", err
	}
	return t.AccessToken, nil
}

// FreshAccessTokens returns service -> access token for everything the user
// has authorized, refreshing stale entries along the way. Credentials that
// are expired and cannot be refreshed are omitted rather than failing the
// whole map; an action needing one then reports a missing credential for its
// own service only.
func (m *Manager) FreshAccessTokens(ctx context.Context, userID string) (map[string]string, error) {
	stored, err := m.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(stored))
	for _, t := range stored {
		fresh, err := m.RefreshIfNeeded(ctx, t)
		if err != nil {
			m.log.Warn("token unusable, skipping",
				logx.String("user", userID),
				logx.String("service", t.Service),
				logx.Err(err))
			continue
		}
		out[fresh.Service] = fresh.AccessToken
	}
	return out, nil
}

// RefreshIfNeeded returns t unchanged while it is fresh, otherwise exchanges
// the refresh token and persists the renewed credential. A permanent
// rejection (revoked grant) deletes the record and returns ErrNoToken so the
// user is prompted to re-authorize.
func (m *Manager) RefreshIfNeeded(ctx context.Context, t Token) (Token, error) {
	now := m.now().UTC()
	if !t.Expired(now, RefreshWindow) {
		return t, nil
	}
	if t.RefreshToken == "" {
		return Token{}, fmt.Errorf("%w: expired without refresh token (service %s)", ErrNoToken, t.Service)
	}

	oc, ok := m.clients[t.Service]
	if !ok {
		return Token{}, fmt.Errorf("no oauth client configured for service %q", t.Service)
	}

	src := oc.TokenSource(ctx, &oauth2.Token{
		RefreshToken: t.RefreshToken,
		// Expiry in the past forces the source to exchange immediately.
		Expiry: now.Add(-time.Minute),
	})
	renewed, err := src.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.ErrorCode == "invalid_grant" {
			// The grant was revoked upstream; the stored record is dead.
			m.count("revoked")
			m.log.Warn("refresh grant revoked, dropping credential",
				logx.String("user", t.UserID),
				logx.String("service", t.Service))
			if derr := m.repo.Delete(ctx, t.UserID, t.Service); derr != nil {
				return Token{}, derr
			}
			return Token{}, fmt.Errorf("%w: grant revoked (service %s)", ErrNoToken, t.Service)
		}
		m.count("failed")
		return Token{}, fmt.Errorf("refresh %s token: %w", t.Service, err)
	}

	t.AccessToken = renewed.AccessToken
	if renewed.RefreshToken != "" {
		t.RefreshToken = renewed.RefreshToken
	}
	if !renewed.Expiry.IsZero() {
		t.ExpiresAt = renewed.Expiry.UTC()
	}

	saved, err := m.repo.Upsert(ctx, t)
	if err != nil {
		return Token{}, err
	}
	m.count("refreshed")
	m.log.Debug("token refreshed",
		logx.String("user", t.UserID),
		logx.String("service", t.Service),
		logx.Time("expires_at", saved.ExpiresAt))
	return saved, nil
}
