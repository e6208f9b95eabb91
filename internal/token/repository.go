package token

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository persists credentials in the oauth_tokens table. One row per
// (user_id, service); Upsert keeps that invariant.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

type tokenRow struct {
	ID           string `db:"id"`
	UserID       string `db:"user_id"`
	Service      string `db:"service"`
	AccessToken  string `db:"access_token"`
	RefreshToken string `db:"refresh_token"`
	ExpiresAt    int64  `db:"expires_at"`
	Scopes       string `db:"scopes"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

func (r tokenRow) toToken() Token {
	return Token{
		ID:           r.ID,
		UserID:       r.UserID,
		Service:      r.Service,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    millisToTime(r.ExpiresAt),
		Scopes:       r.Scopes,
		CreatedAt:    millisToTime(r.CreatedAt),
		UpdatedAt:    millisToTime(r.UpdatedAt),
	}
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// Get returns the credential for one user and service, or ErrNoToken.
func (r *Repository) Get(ctx context.Context, userID, service string) (Token, error) {
	var row tokenRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM oauth_tokens WHERE user_id = ? AND service = ?`, userID, service)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, ErrNoToken
	}
	if err != nil {
		return Token{}, err
	}
	return row.toToken(), nil
}

// ListByUser returns all credentials a user has on record.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Token, error) {
	var rows []tokenRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM oauth_tokens WHERE user_id = ? ORDER BY service`, userID)
	if err != nil {
		return nil, err
	}
	toks := make([]Token, len(rows))
	for i, row := range rows {
		toks[i] = row.toToken()
	}
	return toks, nil
}

// Upsert inserts or replaces the credential for (t.UserID, t.Service).
// CreatedAt is set on first insert only; an empty incoming refresh token
// keeps the stored one, since issuers often omit it on renewal.
func (r *Repository) Upsert(ctx context.Context, t Token) (Token, error) {
	now := time.Now().UTC()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens
			(id, user_id, service, access_token, refresh_token, expires_at, scopes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, service) DO UPDATE SET
			access_token  = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token = '' THEN oauth_tokens.refresh_token ELSE excluded.refresh_token END,
			expires_at    = excluded.expires_at,
			scopes        = excluded.scopes,
			updated_at    = excluded.updated_at`,
		t.ID, t.UserID, t.Service, t.AccessToken, t.RefreshToken,
		timeToMillis(t.ExpiresAt), t.Scopes, timeToMillis(t.CreatedAt), timeToMillis(t.UpdatedAt))
	if err != nil {
		return Token{}, err
	}
	return r.Get(ctx, t.UserID, t.Service)
}

// Delete removes the credential for one user and service. Deleting a missing
// credential is not an error.
func (r *Repository) Delete(ctx context.Context, userID, service string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM oauth_tokens WHERE user_id = ? AND service = ?`, userID, service)
	return err
}
