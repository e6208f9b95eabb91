package area

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/Jocelyn-JE/AREA-51/internal/service"
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

func sampleArea(userID string) Area {
	return Area{
		UserID:          userID,
		ActionService:   "Gmail",
		ActionName:      "new_email",
		ActionParams:    service.Params{"from": "boss@example.com"},
		ReactionService: "Telegram",
		ReactionName:    "send_message",
		ReactionParams:  service.Params{"chat_id": "42", "message": "mail!"},
		Enabled:         true,
	}
}

func TestInsertAndGet(t *testing.T) {
	t.Parallel()

	repo := NewRepository(testDB(t))
	ctx := context.Background()

	saved, err := repo.Insert(ctx, sampleArea("u1"))
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	require.False(t, saved.CreatedAt.IsZero())

	got, err := repo.Get(ctx, saved.ID)
	require.NoError(t, err)
	require.Equal(t, "Gmail", got.ActionService)
	require.Equal(t, "boss@example.com", got.ActionParams["from"])
	require.Equal(t, "42", got.ReactionParams["chat_id"])
	require.True(t, got.Enabled)
	require.True(t, got.LastTriggered.IsZero())
	require.Nil(t, got.LastTriggeredAt())

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindFilters(t *testing.T) {
	t.Parallel()

	repo := NewRepository(testDB(t))
	ctx := context.Background()

	a1, err := repo.Insert(ctx, sampleArea("u1"))
	require.NoError(t, err)
	_, err = repo.Insert(ctx, sampleArea("u2"))
	require.NoError(t, err)

	disabled := sampleArea("u1")
	disabled.Enabled = false
	_, err = repo.Insert(ctx, disabled)
	require.NoError(t, err)

	all, err := repo.Find(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	mine, err := repo.Find(ctx, Filter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)

	enabled, err := repo.Find(ctx, EnabledOnly())
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	for _, a := range enabled {
		require.True(t, a.Enabled)
	}

	both := EnabledOnly()
	both.UserID = "u1"
	got, err := repo.Find(ctx, both)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, a1.ID, got[0].ID)
}

func TestSetEnabled(t *testing.T) {
	t.Parallel()

	repo := NewRepository(testDB(t))
	ctx := context.Background()

	saved, err := repo.Insert(ctx, sampleArea("u1"))
	require.NoError(t, err)

	require.NoError(t, repo.SetEnabled(ctx, saved.ID, false))
	got, err := repo.Get(ctx, saved.ID)
	require.NoError(t, err)
	require.False(t, got.Enabled)

	require.ErrorIs(t, repo.SetEnabled(ctx, "missing", true), ErrNotFound)
}

func TestMarkTriggered(t *testing.T) {
	t.Parallel()

	repo := NewRepository(testDB(t))
	ctx := context.Background()

	saved, err := repo.Insert(ctx, sampleArea("u1"))
	require.NoError(t, err)

	at := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, repo.MarkTriggered(ctx, saved.ID, at))

	got, err := repo.Get(ctx, saved.ID)
	require.NoError(t, err)
	require.Equal(t, at, got.LastTriggered)
	require.NotNil(t, got.LastTriggeredAt())
	require.Equal(t, at, *got.LastTriggeredAt())

	require.ErrorIs(t, repo.MarkTriggered(ctx, "missing", at), ErrNotFound)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	repo := NewRepository(testDB(t))
	ctx := context.Background()

	saved, err := repo.Insert(ctx, sampleArea("u1"))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, saved.ID))
	_, err = repo.Get(ctx, saved.ID)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, repo.Delete(ctx, saved.ID), ErrNotFound)
}
