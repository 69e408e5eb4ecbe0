package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/talkwire/room-broadcast-service/internal/domain/model"
)

const defaultWriteWait = 10 * time.Second

// transport adapts a gorilla connection to the registry's non-owning
// Transport handle. Data writes are serialized behind a mutex because the
// broadcast worker and the handler's own control frames share the socket.
type transport struct {
	conn *websocket.Conn

	mu        sync.Mutex
	closeOnce sync.Once
}

func newTransport(conn *websocket.Conn) *transport {
	return &transport{conn: conn}
}

func (t *transport) Send(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	deadline := time.Now().Add(defaultWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

func (t *transport) sendJSON(ctx context.Context, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.Send(ctx, payload)
}

// Close sends the application close frame and tears the socket down. Safe
// to call from the registry (supersession, shutdown) while the read pump is
// blocked: the pump unblocks with an error and exits through its own path.
func (t *transport) Close(reason model.CloseReason) error {
	var err error
	t.closeOnce.Do(func() {
		frame := websocket.FormatCloseMessage(reason.Code(), reason.Text())
		// WriteControl is safe concurrently with WriteMessage.
		_ = t.conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(time.Second))
		err = t.conn.Close()
	})
	return err
}
