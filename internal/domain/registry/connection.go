package registry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/talkwire/room-broadcast-service/internal/domain/model"
)

// Transport is the non-owning handle to a client's underlying stream.
// The registry never controls the transport's lifetime; it only observes
// whether the transport is still usable. A failed Send flips the liveness
// flag, it never triggers a further Close call.
type Transport interface {
	// Send writes one payload, honoring the context deadline.
	Send(ctx context.Context, payload []byte) error
	// Close terminates the stream with an application-level reason.
	Close(reason model.CloseReason) error
}

// Conn is a live connection entry. Owned exclusively by the Registry;
// mutated only by a superseding connect, an explicit disconnect, or the
// lifecycle supervisor marking it dead.
type Conn struct {
	id       uuid.UUID
	userID   string
	roomID   string
	nickname string
	shardID  int

	transport Transport

	// [ATOMIC_FIELDS] Touched from the WS read pump, the broadcast workers
	// and the supervisor without taking the room lock.
	alive    atomic.Bool
	errCount atomic.Int32
	lastSeen atomic.Int64 // unix nanos of the last inbound activity
}

func newConn(userID, roomID, nickname string, shardID int, tr Transport) *Conn {
	c := &Conn{
		id:        uuid.New(),
		userID:    userID,
		roomID:    roomID,
		nickname:  nickname,
		shardID:   shardID,
		transport: tr,
	}
	c.alive.Store(true)
	c.lastSeen.Store(time.Now().UnixNano())
	return c
}

func (c *Conn) ID() uuid.UUID    { return c.id }
func (c *Conn) UserID() string   { return c.userID }
func (c *Conn) RoomID() string   { return c.roomID }
func (c *Conn) Nickname() string { return c.nickname }
func (c *Conn) ShardID() int     { return c.shardID }

func (c *Conn) Alive() bool { return c.alive.Load() }

// Touch records inbound activity. Called on every frame the client sends,
// including pings; the supervisor's liveness probe compares against it.
func (c *Conn) Touch() { c.lastSeen.Store(time.Now().UnixNano()) }

func (c *Conn) LastSeen() time.Time { return time.Unix(0, c.lastSeen.Load()) }

// IncError bumps the transient error counter and returns the new value.
func (c *Conn) IncError() int32 { return c.errCount.Add(1) }

// ResetErrors zeroes the transient error counter. Invoked on successful
// traffic and by the supervisor's periodic reset pass.
func (c *Conn) ResetErrors() { c.errCount.Store(0) }

func (c *Conn) Errors() int32 { return c.errCount.Load() }

// Send forwards a payload to the transport. Errors are the caller's signal
// to mark the connection dead.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	return c.transport.Send(ctx, payload)
}

// Close asks the transport to terminate with the given reason. Best effort:
// the transport may already be gone.
func (c *Conn) Close(reason model.CloseReason) error {
	return c.transport.Close(reason)
}
