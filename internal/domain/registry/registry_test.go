package registry

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkwire/room-broadcast-service/internal/domain/model"
)

type mockTransport struct {
	mu       sync.Mutex
	received [][]byte
	closed   bool
	reason   model.CloseReason
	sendErr  error
}

func (m *mockTransport) Send(_ context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, payload)
	return nil
}

func (m *mockTransport) Close(reason model.CloseReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.reason = reason
	return nil
}

func (m *mockTransport) closedWith() (bool, model.CloseReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed, m.reason
}

type enqueued struct {
	shard int
	room  string
	msg   *model.Message
}

type mockEnqueuer struct {
	mu    sync.Mutex
	items []enqueued
}

func (m *mockEnqueuer) Enqueue(shardID int, roomID string, msg *model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, enqueued{shard: shardID, room: roomID, msg: msg})
}

func (m *mockEnqueuer) all() []enqueued {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]enqueued(nil), m.items...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T, maxPer int) (*Registry, *mockEnqueuer) {
	t.Helper()
	router, err := NewShardRouter(4)
	require.NoError(t, err)
	mbox := &mockEnqueuer{}
	reg := NewRegistry(Config{
		Rooms:                 map[string]string{"room1": "General", "room2": "Gaming"},
		MaxConnectionsPerRoom: maxPer,
		HistoryLimit:          5,
	}, router, mbox, testLogger())
	return reg, mbox
}

func TestConnect_UnknownRoom(t *testing.T) {
	reg, _ := newTestRegistry(t, 10)

	conn, err := reg.Connect("u1", "alice", "nope", &mockTransport{})
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Nil(t, conn)
}

func TestConnect_RoomFull(t *testing.T) {
	reg, _ := newTestRegistry(t, 2)

	_, err := reg.Connect("u1", "a", "room1", &mockTransport{})
	require.NoError(t, err)
	_, err = reg.Connect("u2", "b", "room1", &mockTransport{})
	require.NoError(t, err)

	_, err = reg.Connect("u3", "c", "room1", &mockTransport{})
	assert.ErrorIs(t, err, ErrRoomFull)

	// The failed connect must not have mutated occupancy.
	assert.Equal(t, 2, len(reg.LiveConnections("room1")))
}

func TestConnect_ReconnectDoesNotCountAgainstLimit(t *testing.T) {
	reg, _ := newTestRegistry(t, 2)

	_, err := reg.Connect("u1", "a", "room1", &mockTransport{})
	require.NoError(t, err)
	_, err = reg.Connect("u2", "b", "room1", &mockTransport{})
	require.NoError(t, err)

	// u1 reopening while the room is at capacity supersedes, not rejects.
	_, err = reg.Connect("u1", "a", "room1", &mockTransport{})
	require.NoError(t, err)
	assert.Equal(t, 2, len(reg.LiveConnections("room1")))
}

func TestConnect_SupersedesPrevious(t *testing.T) {
	reg, _ := newTestRegistry(t, 10)

	oldTr := &mockTransport{}
	oldConn, err := reg.Connect("u1", "a", "room1", oldTr)
	require.NoError(t, err)

	newConn, err := reg.Connect("u1", "a", "room1", &mockTransport{})
	require.NoError(t, err)

	closed, reason := oldTr.closedWith()
	assert.True(t, closed)
	assert.Equal(t, model.CloseReplaced, reason)
	assert.False(t, oldConn.Alive())

	live := reg.LiveConnections("room1")
	require.Len(t, live, 1)
	assert.Same(t, newConn, live[0])
}

func TestDisconnect_Idempotent(t *testing.T) {
	reg, _ := newTestRegistry(t, 10)

	conn, err := reg.Connect("u1", "a", "room1", &mockTransport{})
	require.NoError(t, err)

	assert.True(t, reg.Disconnect(conn))
	assert.False(t, reg.Disconnect(conn))

	assert.Empty(t, reg.LiveConnections("room1"))
}

func TestDisconnect_SupersededDoesNotEvictSuccessor(t *testing.T) {
	reg, _ := newTestRegistry(t, 10)

	stale, err := reg.Connect("u1", "a", "room1", &mockTransport{})
	require.NoError(t, err)
	fresh, err := reg.Connect("u1", "a", "room1", &mockTransport{})
	require.NoError(t, err)

	assert.False(t, reg.Disconnect(stale))

	live := reg.LiveConnections("room1")
	require.Len(t, live, 1)
	assert.Same(t, fresh, live[0])
}

func TestMarkDead_OnlyRemovesCurrentOwner(t *testing.T) {
	reg, _ := newTestRegistry(t, 10)

	stale, err := reg.Connect("u1", "a", "room1", &mockTransport{})
	require.NoError(t, err)
	fresh, err := reg.Connect("u1", "a", "room1", &mockTransport{})
	require.NoError(t, err)

	// Marking the superseded connection dead must not evict its successor.
	reg.MarkDead(stale)

	live := reg.LiveConnections("room1")
	require.Len(t, live, 1)
	assert.Same(t, fresh, live[0])
}

func TestLiveConnections_SelfHealing(t *testing.T) {
	reg, _ := newTestRegistry(t, 10)

	c1, err := reg.Connect("u1", "a", "room1", &mockTransport{})
	require.NoError(t, err)
	_, err = reg.Connect("u2", "b", "room1", &mockTransport{})
	require.NoError(t, err)

	c1.alive.Store(false)

	assert.Len(t, reg.LiveConnections("room1"), 1)
	// The dead entry was removed during the read, not just filtered.
	assert.Equal(t, 1, reg.Counts()["room1"])
}

func TestBroadcast_EnqueuesOnlyPopulatedShards(t *testing.T) {
	reg, mbox := newTestRegistry(t, 10)

	c1, err := reg.Connect("u1", "a", "room1", &mockTransport{})
	require.NoError(t, err)
	c2, err := reg.Connect("u2", "b", "room1", &mockTransport{})
	require.NoError(t, err)

	msg := model.NewUserMessage("room1", "u1", "a", "hello")
	require.True(t, reg.Broadcast(msg))

	want := map[int]bool{c1.ShardID(): true, c2.ShardID(): true}
	got := map[int]bool{}
	for _, e := range mbox.all() {
		assert.Equal(t, "room1", e.room)
		assert.Same(t, msg, e.msg)
		got[e.shard] = true
	}
	assert.Equal(t, want, got)
}

func TestBroadcast_UnknownRoom(t *testing.T) {
	reg, mbox := newTestRegistry(t, 10)

	ok := reg.Broadcast(model.NewUserMessage("nope", "u1", "a", "hi"))
	assert.False(t, ok)
	assert.Empty(t, mbox.all())
}

func TestBroadcast_HistoryExcludesStatus(t *testing.T) {
	reg, _ := newTestRegistry(t, 10)

	_, err := reg.Connect("u1", "a", "room1", &mockTransport{})
	require.NoError(t, err)

	reg.Broadcast(model.NewUserMessage("room1", "u1", "a", "hi"))
	reg.Broadcast(model.NewStatusMessage("room1", &model.RoomStatus{Counts: map[string]int{"room1": 1}}))

	hist := reg.History("room1")
	require.Len(t, hist, 1)
	assert.Equal(t, model.KindUser, hist[0].Kind)
}

func TestHistory_RingEviction(t *testing.T) {
	reg, _ := newTestRegistry(t, 10)

	for i := 0; i < 8; i++ {
		reg.Broadcast(model.NewSystemMessage("room1", string(rune('a'+i))))
	}

	hist := reg.History("room1")
	require.Len(t, hist, 5)
	assert.Equal(t, "d", hist[0].Content)
	assert.Equal(t, "h", hist[4].Content)
}

func TestCounts_AllConfiguredRooms(t *testing.T) {
	reg, _ := newTestRegistry(t, 10)

	_, err := reg.Connect("u1", "a", "room1", &mockTransport{})
	require.NoError(t, err)

	counts := reg.Counts()
	assert.Equal(t, map[string]int{"room1": 1, "room2": 0}, counts)
}

func TestOnChange_FiresOnConnectAndDisconnect(t *testing.T) {
	reg, _ := newTestRegistry(t, 10)

	fired := 0
	reg.SetOnChange(func() { fired++ })

	conn, err := reg.Connect("u1", "a", "room1", &mockTransport{})
	require.NoError(t, err)
	reg.Disconnect(conn)

	assert.Equal(t, 2, fired)
}

func TestCloseAll(t *testing.T) {
	reg, _ := newTestRegistry(t, 10)

	tr1 := &mockTransport{}
	tr2 := &mockTransport{}
	_, err := reg.Connect("u1", "a", "room1", tr1)
	require.NoError(t, err)
	_, err = reg.Connect("u2", "b", "room2", tr2)
	require.NoError(t, err)

	reg.CloseAll(model.CloseServerShutdown)

	for _, tr := range []*mockTransport{tr1, tr2} {
		closed, reason := tr.closedWith()
		assert.True(t, closed)
		assert.Equal(t, model.CloseServerShutdown, reason)
	}
	assert.Empty(t, reg.LiveConnections("room1"))
	assert.Empty(t, reg.LiveConnections("room2"))
}
