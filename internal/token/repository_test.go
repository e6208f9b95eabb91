package token

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/Jocelyn-JE/AREA-51/internal/storage"
	logx "github.com/Jocelyn-JE/AREA-51/pkg/logx"
)

func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRepositoryUpsertAndGet(t *testing.T) {
	t.Parallel()

	repo := NewRepository(testDB(t))
	ctx := context.Background()

	_, err := repo.Get(ctx, "u1", "google")
	require.ErrorIs(t, err, ErrNoToken)

	saved, err := repo.Upsert(ctx, Token{
		UserID:       "u1",
		Service:      "google",
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(time.Hour),
		Scopes:       "mail drive",
	})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	require.False(t, saved.CreatedAt.IsZero())

	got, err := repo.Get(ctx, "u1", "google")
	require.NoError(t, err)
	require.Equal(t, "at-1", got.AccessToken)
	require.Equal(t, "rt-1", got.RefreshToken)
	require.Equal(t, "mail drive", got.Scopes)
}

func TestRepositoryUpsertKeepsIdentityAndRefreshToken(t *testing.T) {
	t.Parallel()

	repo := NewRepository(testDB(t))
	ctx := context.Background()

	first, err := repo.Upsert(ctx, Token{
		UserID: "u1", Service: "github",
		AccessToken: "at-1", RefreshToken: "rt-1",
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	// Renewal without a refresh token keeps the stored one.
	second, err := repo.Upsert(ctx, Token{
		UserID: "u1", Service: "github",
		AccessToken: "at-2",
	})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "at-2", second.AccessToken)
	require.Equal(t, "rt-1", second.RefreshToken)
	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestRepositoryListByUser(t *testing.T) {
	t.Parallel()

	repo := NewRepository(testDB(t))
	ctx := context.Background()

	for _, svc := range []string{"google", "github"} {
		_, err := repo.Upsert(ctx, Token{UserID: "u1", Service: svc, AccessToken: "at"})
		require.NoError(t, err)
	}
	_, err := repo.Upsert(ctx, Token{UserID: "u2", Service: "google", AccessToken: "at"})
	require.NoError(t, err)

	toks, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, toks, 2)
	require.Equal(t, "github", toks[0].Service)
	require.Equal(t, "google", toks[1].Service)
}

func TestRepositoryDelete(t *testing.T) {
	t.Parallel()

	repo := NewRepository(testDB(t))
	ctx := context.Background()

	_, err := repo.Upsert(ctx, Token{UserID: "u1", Service: "google", AccessToken: "at"})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "u1", "google"))
	_, err = repo.Get(ctx, "u1", "google")
	require.ErrorIs(t, err, ErrNoToken)

	// Deleting again is a no-op.
	require.NoError(t, repo.Delete(ctx, "u1", "google"))
}

func TestTokenExpiredAndUsable(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	noExpiry := Token{AccessToken: "at"}
	require.False(t, noExpiry.Expired(now, RefreshWindow))
	require.True(t, noExpiry.Usable(now))

	fresh := Token{AccessToken: "at", ExpiresAt: now.Add(time.Hour)}
	require.False(t, fresh.Expired(now, RefreshWindow))

	// Inside the proactive window counts as expired.
	closing := Token{AccessToken: "at", ExpiresAt: now.Add(2 * time.Minute)}
	require.True(t, closing.Expired(now, RefreshWindow))
	require.False(t, closing.Usable(now))

	refreshable := Token{AccessToken: "at", RefreshToken: "rt", ExpiresAt: now.Add(-time.Hour)}
	require.True(t, refreshable.Usable(now))
}
