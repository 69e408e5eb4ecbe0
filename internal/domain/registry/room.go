package registry

import (
	"sync"

	"github.com/talkwire/room-broadcast-service/internal/domain/model"
)

// room is the unit of exclusion. Every mutation of a room's membership runs
// under its own mutex, so independent rooms never contend.
type room struct {
	id    string
	title string

	mu sync.Mutex
	// conns is the flat authoritative view: at most one live entry per user.
	conns map[string]*Conn
	// shards partitions the same entries by shard for parallel fan-out.
	shards []map[string]*Conn

	history *historyRing
}

func newRoom(id, title string, shardCount, historyLimit int) *room {
	shards := make([]map[string]*Conn, shardCount)
	for i := range shards {
		shards[i] = make(map[string]*Conn)
	}
	return &room{
		id:      id,
		title:   title,
		conns:   make(map[string]*Conn),
		shards:  shards,
		history: newHistoryRing(historyLimit),
	}
}

// put registers a connection under both views. Caller holds r.mu.
func (r *room) put(c *Conn) {
	r.conns[c.UserID()] = c
	r.shards[c.ShardID()][c.UserID()] = c
}

// remove drops a user's entry from both views. Caller holds r.mu.
// Returns the removed connection, or nil if the user had none.
func (r *room) remove(userID string, shardID int) *Conn {
	c, ok := r.conns[userID]
	if !ok {
		return nil
	}
	delete(r.conns, userID)
	delete(r.shards[shardID], userID)
	return c
}

// historyRing keeps the most recent messages delivered to a room, bounded
// at a fixed length. Insertion evicts the oldest entry first. Not a
// durability guarantee; it only seeds late joiners.
type historyRing struct {
	buf  []*model.Message
	head int // index of the oldest entry
	size int
}

func newHistoryRing(limit int) *historyRing {
	return &historyRing{buf: make([]*model.Message, limit)}
}

func (h *historyRing) append(m *model.Message) {
	if len(h.buf) == 0 {
		return
	}
	if h.size < len(h.buf) {
		h.buf[(h.head+h.size)%len(h.buf)] = m
		h.size++
		return
	}
	// Full: overwrite the oldest slot and advance.
	h.buf[h.head] = m
	h.head = (h.head + 1) % len(h.buf)
}

// snapshot returns the retained messages, oldest first.
func (h *historyRing) snapshot() []*model.Message {
	out := make([]*model.Message, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}
	return out
}
