package supervisor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkwire/room-broadcast-service/internal/domain/model"
	"github.com/talkwire/room-broadcast-service/internal/domain/registry"
)

type nopTransport struct{}

func (nopTransport) Send(context.Context, []byte) error { return nil }
func (nopTransport) Close(model.CloseReason) error      { return nil }

type nopEnqueuer struct{}

func (nopEnqueuer) Enqueue(int, string, *model.Message) {}

type fakeTrimmer struct{ trimmed int }

func (f *fakeTrimmer) Trim() int { return f.trimmed }

type fakeRefresher struct{ triggers int }

func (f *fakeRefresher) Trigger() { f.triggers++ }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	router, err := registry.NewShardRouter(2)
	require.NoError(t, err)
	return registry.NewRegistry(registry.Config{
		Rooms:                 map[string]string{"room1": "General"},
		MaxConnectionsPerRoom: 10,
		HistoryLimit:          10,
	}, router, nopEnqueuer{}, testLogger())
}

func TestCleanupPass_ReclaimsSilentConnections(t *testing.T) {
	reg := newTestRegistry(t)
	trimmer := &fakeTrimmer{}
	refresher := &fakeRefresher{}

	s := New(reg, trimmer, refresher, Config{
		CleanupInterval:    time.Minute,
		ErrorResetInterval: time.Hour,
		ProbeTimeout:       time.Nanosecond,
	}, testLogger())

	_, err := reg.Connect("u1", "a", "room1", nopTransport{})
	require.NoError(t, err)

	// Any connection is silent past a nanosecond probe window.
	time.Sleep(time.Millisecond)
	s.CleanupPass()

	assert.Empty(t, reg.LiveConnections("room1"))
	assert.Equal(t, 1, refresher.triggers)
}

func TestCleanupPass_KeepsActiveConnections(t *testing.T) {
	reg := newTestRegistry(t)
	s := New(reg, &fakeTrimmer{}, &fakeRefresher{}, Config{
		CleanupInterval:    time.Minute,
		ErrorResetInterval: time.Hour,
		ProbeTimeout:       time.Hour,
	}, testLogger())

	conn, err := reg.Connect("u1", "a", "room1", nopTransport{})
	require.NoError(t, err)
	conn.Touch()

	s.CleanupPass()

	assert.Len(t, reg.LiveConnections("room1"), 1)
}

func TestErrorResetPass(t *testing.T) {
	reg := newTestRegistry(t)
	s := New(reg, &fakeTrimmer{}, &fakeRefresher{}, Config{
		CleanupInterval:    time.Minute,
		ErrorResetInterval: time.Hour,
		ProbeTimeout:       time.Hour,
	}, testLogger())

	conn, err := reg.Connect("u1", "a", "room1", nopTransport{})
	require.NoError(t, err)
	conn.IncError()
	conn.IncError()
	require.Equal(t, int32(2), conn.Errors())

	s.ErrorResetPass()

	assert.Equal(t, int32(0), conn.Errors())
}

func TestSupervisor_StartStop(t *testing.T) {
	reg := newTestRegistry(t)
	s := New(reg, &fakeTrimmer{}, &fakeRefresher{}, Config{
		CleanupInterval:    10 * time.Millisecond,
		ErrorResetInterval: 10 * time.Millisecond,
		ProbeTimeout:       time.Hour,
	}, testLogger())

	s.Start()
	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
