package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkwire/room-broadcast-service/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) MessageStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "chat.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mkMessage(roomID, content string, at time.Time) *model.Message {
	m := model.NewUserMessage(roomID, "u1", "alice", content)
	m.SentAt = at
	return m
}

func TestSQLite_SaveAndGetOldestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	msgs := []*model.Message{
		mkMessage("room1", "first", base),
		mkMessage("room1", "second", base.Add(time.Second)),
		mkMessage("room1", "third", base.Add(2*time.Second)),
		mkMessage("room2", "elsewhere", base),
	}
	require.NoError(t, store.SaveMessages(ctx, msgs))

	got, err := store.GetMessages(ctx, "room1", time.Time{}, 50)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0].Content)
	assert.Equal(t, "second", got[1].Content)
	assert.Equal(t, "third", got[2].Content)
}

func TestSQLite_BeforeCursor(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	require.NoError(t, store.SaveMessages(ctx, []*model.Message{
		mkMessage("room1", "old", base),
		mkMessage("room1", "new", base.Add(10*time.Second)),
	}))

	got, err := store.GetMessages(ctx, "room1", base.Add(5*time.Second), 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "old", got[0].Content)
}

func TestSQLite_LimitKeepsNewest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	var msgs []*model.Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, mkMessage("room1", string(rune('a'+i)), base.Add(time.Duration(i)*time.Second)))
	}
	require.NoError(t, store.SaveMessages(ctx, msgs))

	got, err := store.GetMessages(ctx, "room1", time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// The limit trims from the old end, still returned oldest first.
	assert.Equal(t, "d", got[0].Content)
	assert.Equal(t, "e", got[1].Content)
}

func TestSQLite_SaveIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	m := mkMessage("room1", "once", time.Now().Add(-time.Minute))
	require.NoError(t, store.SaveMessages(ctx, []*model.Message{m}))
	require.NoError(t, store.SaveMessages(ctx, []*model.Message{m}))

	got, err := store.GetMessages(ctx, "room1", time.Time{}, 50)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLite_EmptyRoom(t *testing.T) {
	store := openTestStore(t)

	got, err := store.GetMessages(context.Background(), "room1", time.Time{}, 50)
	require.NoError(t, err)
	assert.Empty(t, got)
}
