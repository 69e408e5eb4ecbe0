// Package registry owns the authoritative room -> user -> connection state
// of the broadcast manager.
//
// Concurrency discipline: every mutation for a given room is serialized
// behind that room's own mutex, never a registry-wide lock, so independent
// rooms (and therefore shards) make progress without contending. The room
// table itself is built once from configuration and is immutable afterwards,
// which is what makes lock-free room lookup safe.
package registry

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/talkwire/room-broadcast-service/internal/domain/model"
)

var (
	ErrRoomNotFound = errors.New("registry: room not found")
	ErrRoomFull     = errors.New("registry: room is full")
)

// Enqueuer is the mailbox side of the broadcast path. Implemented by the
// broadcast package; declared here so the registry stays transport-agnostic.
type Enqueuer interface {
	Enqueue(shardID int, roomID string, msg *model.Message)
}

type Config struct {
	// Rooms maps configured room IDs to display titles. Connects to any
	// other room fail with ErrRoomNotFound.
	Rooms map[string]string
	// MaxConnectionsPerRoom bounds the number of distinct users in a room.
	// A user's own prior connection does not count against the limit.
	MaxConnectionsPerRoom int
	// HistoryLimit caps the per-room ring of recently delivered messages.
	HistoryLimit int
}

type Registry struct {
	router  *ShardRouter
	rooms   map[string]*room // immutable after construction
	maxPer  int
	mailbox Enqueuer
	logger  *slog.Logger

	// onChange fires after every connect/disconnect so the status publisher
	// can refresh occupancy. Set once during wiring, before traffic starts.
	onChange func()
}

func NewRegistry(cfg Config, router *ShardRouter, mailbox Enqueuer, logger *slog.Logger) *Registry {
	rooms := make(map[string]*room, len(cfg.Rooms))
	for id, title := range cfg.Rooms {
		rooms[id] = newRoom(id, title, router.Shards(), cfg.HistoryLimit)
	}
	return &Registry{
		router:  router,
		rooms:   rooms,
		maxPer:  cfg.MaxConnectionsPerRoom,
		mailbox: mailbox,
		logger:  logger,
	}
}

func (g *Registry) Router() *ShardRouter { return g.router }

// SetOnChange installs the occupancy-change hook. Must be called before the
// first connect.
func (g *Registry) SetOnChange(fn func()) { g.onChange = fn }

func (g *Registry) notify() {
	if g.onChange != nil {
		g.onChange()
	}
}

// Connect registers a new live connection for (userID, roomID).
//
// A pre-existing connection for the same pair is superseded: it is asked to
// close with a "replaced" reason and its entries are removed before the new
// one is registered. Failure modes (unknown room, full room) return without
// mutating any state.
func (g *Registry) Connect(userID, nickname, roomID string, tr Transport) (*Conn, error) {
	r, ok := g.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	shardID := g.router.ShardFor(userID)
	conn := newConn(userID, roomID, nickname, shardID, tr)

	r.mu.Lock()
	others := len(r.conns)
	if _, connected := r.conns[userID]; connected {
		others--
	}
	if others >= g.maxPer {
		r.mu.Unlock()
		return nil, ErrRoomFull
	}

	if old := r.remove(userID, shardID); old != nil {
		old.alive.Store(false)
		// The old transport is closed outside the registry's ownership; a
		// failure here just means the peer is already gone.
		if err := old.Close(model.CloseReplaced); err != nil {
			g.logger.Debug("close superseded connection", "user_id", userID, "room_id", roomID, "error", err)
		}
	}
	r.put(conn)
	r.mu.Unlock()

	g.logger.Info("connected", "user_id", userID, "room_id", roomID, "shard", shardID)
	g.notify()
	return conn, nil
}

// Disconnect removes the connection from both views, but only while it is
// still the current entry for its user: a handle already superseded by a
// newer connect must not evict its successor. Reports whether an entry was
// actually removed. Idempotent, always triggers a status refresh.
func (g *Registry) Disconnect(c *Conn) bool {
	c.alive.Store(false)

	r, ok := g.rooms[c.RoomID()]
	if !ok {
		return false
	}

	removed := false
	r.mu.Lock()
	if cur, ok := r.conns[c.UserID()]; ok && cur == c {
		r.remove(c.UserID(), c.ShardID())
		removed = true
	}
	r.mu.Unlock()

	g.notify()
	return removed
}

// MarkDead removes a connection whose transport is already unusable. No
// close call is attempted; the transport cannot be reached anyway.
func (g *Registry) MarkDead(c *Conn) {
	c.alive.Store(false)

	r, ok := g.rooms[c.RoomID()]
	if !ok {
		return
	}
	r.mu.Lock()
	// Only remove if this exact connection still owns the slot; a
	// superseding connect may already have replaced it.
	if cur, ok := r.conns[c.UserID()]; ok && cur == c {
		r.remove(c.UserID(), c.ShardID())
	}
	r.mu.Unlock()

	g.logger.Debug("marked dead", "user_id", c.UserID(), "room_id", c.RoomID())
}

// LiveConnections returns the room's live connections. Entries discovered
// dead during the read are removed as a side effect (self-healing read).
func (g *Registry) LiveConnections(roomID string) []*Conn {
	r, ok := g.rooms[roomID]
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conn, 0, len(r.conns))
	for userID, c := range r.conns {
		if !c.Alive() {
			r.remove(userID, c.ShardID())
			continue
		}
		out = append(out, c)
	}
	return out
}

// LiveShardConnections returns the live connections of one shard of a room.
// The broadcast workers use it to fan a batch out to the shard they own.
func (g *Registry) LiveShardConnections(roomID string, shardID int) []*Conn {
	r, ok := g.rooms[roomID]
	if !ok || shardID < 0 || shardID >= len(r.shards) {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conn, 0, len(r.shards[shardID]))
	for userID, c := range r.shards[shardID] {
		if !c.Alive() {
			r.remove(userID, c.ShardID())
			continue
		}
		out = append(out, c)
	}
	return out
}

// Broadcast appends the message to the room history and enqueues it into the
// mailbox of every shard that currently has live connections in the room.
// Returns false when the room is unknown.
func (g *Registry) Broadcast(msg *model.Message) bool {
	r, ok := g.rooms[msg.RoomID]
	if !ok {
		return false
	}

	r.mu.Lock()
	// Status frames are regenerated on every occupancy change; keeping them
	// in the seed history would only replay stale counts to late joiners.
	if msg.Kind != model.KindStatus {
		r.history.append(msg)
	}
	pending := make([]int, 0, len(r.shards))
	for shardID, conns := range r.shards {
		if len(conns) > 0 {
			pending = append(pending, shardID)
		}
	}
	r.mu.Unlock()

	for _, shardID := range pending {
		g.mailbox.Enqueue(shardID, msg.RoomID, msg)
	}
	return true
}

// History returns the room's retained messages, oldest first.
func (g *Registry) History(roomID string) []*model.Message {
	r, ok := g.rooms[roomID]
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.snapshot()
}

// Counts reports the current participant count of every configured room,
// counting only live entries.
func (g *Registry) Counts() map[string]int {
	counts := make(map[string]int, len(g.rooms))
	for id := range g.rooms {
		counts[id] = len(g.LiveConnections(id))
	}
	return counts
}

// Rooms lists the configured rooms with their occupancy, sorted by ID.
func (g *Registry) Rooms() []model.RoomStats {
	out := make([]model.RoomStats, 0, len(g.rooms))
	for id, r := range g.rooms {
		out = append(out, model.RoomStats{
			RoomID:       id,
			Title:        r.title,
			Participants: len(g.LiveConnections(id)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// HasRoom reports whether a room is configured.
func (g *Registry) HasRoom(roomID string) bool {
	_, ok := g.rooms[roomID]
	return ok
}

// EachConnection visits every registered connection. The supervisor uses it
// for liveness probing and error-counter resets. The callback runs outside
// the room locks.
func (g *Registry) EachConnection(fn func(*Conn)) {
	for id := range g.rooms {
		r := g.rooms[id]
		r.mu.Lock()
		conns := make([]*Conn, 0, len(r.conns))
		for _, c := range r.conns {
			conns = append(conns, c)
		}
		r.mu.Unlock()
		for _, c := range conns {
			fn(c)
		}
	}
}

// CloseAll terminates every connection with the given reason and empties the
// registry. Used on shutdown, after the background loops have stopped.
func (g *Registry) CloseAll(reason model.CloseReason) {
	for id := range g.rooms {
		r := g.rooms[id]
		r.mu.Lock()
		for userID, c := range r.conns {
			c.alive.Store(false)
			if err := c.Close(reason); err != nil {
				g.logger.Debug("close on shutdown", "user_id", userID, "error", err)
			}
		}
		r.conns = make(map[string]*Conn)
		for i := range r.shards {
			r.shards[i] = make(map[string]*Conn)
		}
		r.mu.Unlock()
	}
}
