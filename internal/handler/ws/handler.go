package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/talkwire/room-broadcast-service/config"
	"github.com/talkwire/room-broadcast-service/internal/domain/model"
	"github.com/talkwire/room-broadcast-service/internal/domain/registry"
	"github.com/talkwire/room-broadcast-service/internal/service"
)

const maxFrameSize = 1 << 20

// Handler upgrades chat clients and runs their read pump. One goroutine per
// connection; all fan-out happens in the broadcast workers.
type Handler struct {
	chat   service.Chatter
	logger *slog.Logger

	upgrader websocket.Upgrader

	maxErrors    int32
	pingInterval time.Duration
	pongWait     time.Duration
}

func NewHandler(chat service.Chatter, cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		chat:   chat,
		logger: logger.With(slog.String("handler", "ws")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		maxErrors:    int32(cfg.MaxErrors),
		pingInterval: cfg.PingInterval,
		pongWait:     cfg.PingInterval + cfg.PingTimeout,
	}
}

// inboundFrame is the only shape clients are allowed to send.
type inboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	roomID := chi.URLParam(r, "roomID")

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("[WS_UPGRADE] failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return
	}
	tr := newTransport(sock)

	// The acknowledgement goes out before the join is visible to the
	// broadcast path, so it is always the first frame the client reads.
	if err := tr.sendJSON(r.Context(), model.ControlFrame{Type: model.ControlEstablished}); err != nil {
		_ = sock.Close()
		return
	}

	conn, seed, err := h.chat.Join(r.Context(), userID, roomID, tr)
	if err != nil {
		_ = tr.Close(joinCloseReason(err))
		return
	}
	defer h.chat.Leave(conn)

	if err := h.seedHistory(r, tr, seed); err != nil {
		return
	}

	h.readPump(r, sock, tr, conn)
}

func joinCloseReason(err error) model.CloseReason {
	switch {
	case errors.Is(err, registry.ErrRoomNotFound):
		return model.CloseRoomNotFound
	case errors.Is(err, registry.ErrRoomFull):
		return model.CloseRoomFull
	default:
		return model.CloseServerShutdown
	}
}

// seedHistory replays the retained room tail to a fresh connection, oldest
// first, before any live traffic can be observed on top of it.
func (h *Handler) seedHistory(r *http.Request, tr *transport, seed []*model.Message) error {
	if len(seed) == 0 {
		return nil
	}
	frames := make([]model.Frame, 0, len(seed))
	for _, m := range seed {
		frames = append(frames, m.Frame())
	}
	return tr.sendJSON(r.Context(), frames)
}

func (h *Handler) readPump(r *http.Request, sock *websocket.Conn, tr *transport, conn *registry.Conn) {
	sock.SetReadLimit(maxFrameSize)
	_ = sock.SetReadDeadline(time.Now().Add(h.pongWait))
	sock.SetPongHandler(func(string) error {
		conn.Touch()
		return sock.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go h.pingLoop(sock, stop)

	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("[WS_READ] connection dropped",
					slog.String("user_id", conn.UserID()),
					slog.String("room_id", conn.RoomID()),
					slog.Any("error", err),
				)
			}
			return
		}
		conn.Touch()
		_ = sock.SetReadDeadline(time.Now().Add(h.pongWait))

		var in inboundFrame
		if err := json.Unmarshal(data, &in); err != nil {
			if conn.IncError() >= h.maxErrors {
				h.logger.Warn("[WS_ERRORS] closing after repeated malformed frames",
					slog.String("user_id", conn.UserID()),
					slog.String("room_id", conn.RoomID()),
				)
				_ = tr.Close(model.CloseTooManyErrors)
				return
			}
			continue
		}

		switch in.Type {
		case model.ControlPing:
			conn.ResetErrors()
			if err := tr.sendJSON(r.Context(), model.ControlFrame{Type: model.ControlPong}); err != nil {
				return
			}
		default:
			if in.Content == "" {
				continue
			}
			h.chat.Publish(r.Context(), conn, in.Content)
			conn.ResetErrors()
		}
	}
}

// pingLoop keeps intermediaries from idling the socket out. The client's
// application-level JSON pings are handled in the read pump; this one uses
// protocol pings so dumb clients stay alive too.
func (h *Handler) pingLoop(sock *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(defaultWriteWait)); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}
