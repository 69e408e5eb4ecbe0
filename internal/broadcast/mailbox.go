// Package broadcast implements the sharded fan-out path: one bounded FIFO
// mailbox per (shard, room) pair and one worker goroutine per shard that
// drains its mailboxes in timed batches.
package broadcast

import (
	"sync"

	"github.com/talkwire/room-broadcast-service/internal/domain/model"
)

type mailboxKey struct {
	shard int
	room  string
}

// queue is one bounded FIFO mailbox. Producers are serialized at the queue
// level; only the owning shard's worker ever drains it.
type queue struct {
	mu       sync.Mutex
	items    []*model.Message
	capacity int
	dropped  uint64

	// signal carries at most one pending wakeup for the batch collector.
	signal chan struct{}
}

func newQueue(capacity int) *queue {
	return &queue{
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// push appends a message. When the queue is at capacity the oldest pending
// entry is evicted first: live chat favors recency over completeness.
func (q *queue) push(m *model.Message) {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		n := copy(q.items, q.items[1:])
		q.items = q.items[:n]
		q.dropped++
	}
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// take removes up to max messages from the front, preserving FIFO order.
func (q *queue) take(max int) []*model.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if n == 0 {
		return nil
	}
	if n > max {
		n = max
	}
	out := make([]*model.Message, n)
	copy(out, q.items[:n])
	rest := copy(q.items, q.items[n:])
	for i := rest; i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = q.items[:rest]
	return out
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// trim re-asserts the capacity bound, dropping from the front. The normal
// push path already enforces it; the supervisor calls this defensively.
func (q *queue) trim() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	over := len(q.items) - q.capacity
	if over <= 0 {
		return 0
	}
	rest := copy(q.items, q.items[over:])
	for i := rest; i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = q.items[:rest]
	q.dropped += uint64(over)
	return over
}

// Mailbox is the set of bounded queues keyed by (shard, room). Queues are
// created lazily on first enqueue and live for the process lifetime; the
// room set is fixed by configuration.
type Mailbox struct {
	shards   int
	capacity int

	mu     sync.RWMutex
	queues map[mailboxKey]*queue

	// wakes carries room hints to each shard's worker. A dropped hint is
	// harmless: the worker's periodic sweep picks up anything pending.
	wakes []chan string
}

func NewMailbox(shards, capacity int) *Mailbox {
	wakes := make([]chan string, shards)
	for i := range wakes {
		wakes[i] = make(chan string, 256)
	}
	return &Mailbox{
		shards:   shards,
		capacity: capacity,
		queues:   make(map[mailboxKey]*queue),
		wakes:    wakes,
	}
}

func (m *Mailbox) Shards() int { return m.shards }

// Enqueue places a message into the (shard, room) mailbox. Never blocks and
// never fails; a full queue evicts its oldest entry (bounded staleness).
func (m *Mailbox) Enqueue(shardID int, roomID string, msg *model.Message) {
	if shardID < 0 || shardID >= m.shards {
		return
	}
	m.queue(shardID, roomID).push(msg)

	select {
	case m.wakes[shardID] <- roomID:
	default:
	}
}

func (m *Mailbox) queue(shardID int, roomID string) *queue {
	k := mailboxKey{shard: shardID, room: roomID}
	m.mu.RLock()
	q, ok := m.queues[k]
	m.mu.RUnlock()
	if ok {
		return q
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok = m.queues[k]; !ok {
		q = newQueue(m.capacity)
		m.queues[k] = q
	}
	return q
}

// lookup returns an existing queue without creating one.
func (m *Mailbox) lookup(shardID int, roomID string) *queue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queues[mailboxKey{shard: shardID, room: roomID}]
}

func (m *Mailbox) wake(shardID int) <-chan string { return m.wakes[shardID] }

// pendingRooms lists the rooms of one shard with queued messages.
func (m *Mailbox) pendingRooms(shardID int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rooms []string
	for k, q := range m.queues {
		if k.shard == shardID && q.len() > 0 {
			rooms = append(rooms, k.room)
		}
	}
	return rooms
}

// Len reports the queued message count for one (shard, room) mailbox.
func (m *Mailbox) Len(shardID int, roomID string) int {
	if q := m.lookup(shardID, roomID); q != nil {
		return q.len()
	}
	return 0
}

// Trim re-asserts the capacity bound on every queue and returns how many
// messages were dropped. Called by the lifecycle supervisor's cleanup pass.
func (m *Mailbox) Trim() int {
	m.mu.RLock()
	qs := make([]*queue, 0, len(m.queues))
	for _, q := range m.queues {
		qs = append(qs, q)
	}
	m.mu.RUnlock()

	dropped := 0
	for _, q := range qs {
		dropped += q.trim()
	}
	return dropped
}
