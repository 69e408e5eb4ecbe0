package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/talkwire/room-broadcast-service/internal/domain/model"
	"github.com/talkwire/room-broadcast-service/internal/domain/registry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ConnSource is the registry surface the workers depend on: resolve the live
// connections of the shard they own, and reclaim the ones that fail.
type ConnSource interface {
	LiveShardConnections(roomID string, shardID int) []*registry.Conn
	MarkDead(c *registry.Conn)
}

type Config struct {
	// BatchSize caps how many messages one delivery carries.
	BatchSize int
	// BatchTimeout bounds how long a partial batch waits for more messages.
	BatchTimeout time.Duration
	// MinInterval is the per-room debounce between consecutive deliveries.
	MinInterval time.Duration
	// DeliveryTimeout bounds one batch's total fan-out; sends still pending
	// when it expires are abandoned and those connections marked dead.
	DeliveryTimeout time.Duration
}

// Pool runs one BroadcastWorker goroutine per shard. Each worker drains only
// its own shard's mailboxes, so workers never contend with each other.
type Pool struct {
	mailbox *Mailbox
	source  ConnSource
	cfg     Config
	logger  *slog.Logger

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter

	cancel context.CancelFunc
	group  *errgroup.Group
}

func NewPool(mailbox *Mailbox, source ConnSource, cfg Config, logger *slog.Logger) *Pool {
	return &Pool{
		mailbox:  mailbox,
		source:   source,
		cfg:      cfg,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Start launches the shard workers. They run until Stop.
func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.group, ctx = errgroup.WithContext(ctx)

	for shard := 0; shard < p.mailbox.Shards(); shard++ {
		shard := shard
		p.group.Go(func() error {
			p.run(ctx, shard)
			return nil
		})
	}
	p.logger.Info("broadcast workers started", "shards", p.mailbox.Shards())
}

// Stop cancels the workers and waits for them to finish, bounded by ctx.
func (p *Pool) Stop(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is one shard's worker loop: drain on wake hints, sweep periodically so
// a dropped hint never strands queued messages.
func (p *Pool) run(ctx context.Context, shardID int) {
	sweep := time.NewTicker(p.cfg.BatchTimeout)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case roomID := <-p.mailbox.wake(shardID):
			p.drainRoom(ctx, shardID, roomID)
		case <-sweep.C:
			for _, roomID := range p.mailbox.pendingRooms(shardID) {
				p.drainRoom(ctx, shardID, roomID)
			}
		}
	}
}

// drainRoom delivers everything pending for one (shard, room) mailbox in
// batches of at most BatchSize.
func (p *Pool) drainRoom(ctx context.Context, shardID int, roomID string) {
	q := p.mailbox.lookup(shardID, roomID)
	if q == nil {
		return
	}

	for ctx.Err() == nil {
		batch := p.collect(ctx, q)
		if len(batch) == 0 {
			return
		}
		if err := p.waitTurn(ctx, roomID); err != nil {
			return
		}
		p.deliver(ctx, shardID, roomID, batch)
	}
}

// collect assembles one batch: take what is queued, then wait up to
// BatchTimeout for the batch to fill before delivering it short.
func (p *Pool) collect(ctx context.Context, q *queue) []*model.Message {
	batch := q.take(p.cfg.BatchSize)
	if len(batch) == 0 || len(batch) == p.cfg.BatchSize {
		return batch
	}

	timer := time.NewTimer(p.cfg.BatchTimeout)
	defer timer.Stop()
	for len(batch) < p.cfg.BatchSize {
		select {
		case <-ctx.Done():
			return batch
		case <-timer.C:
			return batch
		case <-q.signal:
			batch = append(batch, q.take(p.cfg.BatchSize-len(batch))...)
		}
	}
	return batch
}

// waitTurn enforces the minimum inter-broadcast interval for a room.
func (p *Pool) waitTurn(ctx context.Context, roomID string) error {
	p.limMu.Lock()
	lim, ok := p.limiters[roomID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(p.cfg.MinInterval), 1)
		p.limiters[roomID] = lim
	}
	p.limMu.Unlock()
	return lim.Wait(ctx)
}

// deliver fans one batch out to the shard's live connections in the room.
// Per-connection isolated: one failed send marks that connection dead and
// never aborts delivery to the rest.
func (p *Pool) deliver(ctx context.Context, shardID int, roomID string, batch []*model.Message) {
	conns := p.source.LiveShardConnections(roomID, shardID)
	if len(conns) == 0 {
		return
	}

	payload, err := encodeBatch(batch)
	if err != nil {
		p.logger.Error("encode batch", "room_id", roomID, "shard", shardID, "error", err)
		return
	}

	dctx, cancel := context.WithTimeout(ctx, p.cfg.DeliveryTimeout)
	defer cancel()

	failed := 0
	for _, c := range conns {
		if dctx.Err() != nil {
			// Overall delivery window elapsed: abandon the remaining sends
			// rather than stall the worker (or shutdown) on slow peers.
			p.source.MarkDead(c)
			failed++
			continue
		}
		if err := c.Send(dctx, payload); err != nil {
			p.source.MarkDead(c)
			failed++
		}
	}

	if failed > 0 {
		p.logger.Debug("batch delivered with failures",
			"room_id", roomID, "shard", shardID,
			"messages", len(batch), "conns", len(conns), "failed", failed)
	}
}

// encodeBatch marshals the wire payload exactly once per (shard, batch):
// a single frame when the batch holds one message, an array otherwise.
func encodeBatch(batch []*model.Message) ([]byte, error) {
	if len(batch) == 1 {
		return json.Marshal(batch[0].Frame())
	}
	frames := make([]model.Frame, len(batch))
	for i, m := range batch {
		frames[i] = m.Frame()
	}
	return json.Marshal(frames)
}
