package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/talkwire/room-broadcast-service/internal/domain/model"
	"github.com/talkwire/room-broadcast-service/internal/domain/registry"
	"github.com/talkwire/room-broadcast-service/internal/service"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// Handler serves the read-only REST surface next to the WebSocket endpoint.
type Handler struct {
	chat   service.Chatter
	logger *slog.Logger
}

func NewHandler(chat service.Chatter, logger *slog.Logger) *Handler {
	return &Handler{
		chat:   chat,
		logger: logger.With(slog.String("handler", "httpapi")),
	}
}

// Messages returns the durable history of a room, oldest first, paginated
// backwards through the `before` cursor.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	before := time.Now()
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before timestamp")
			return
		}
		before = t
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	msgs, err := h.chat.History(r.Context(), roomID, before, limit)
	if err != nil {
		if errors.Is(err, registry.ErrRoomNotFound) {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		h.logger.Error("[HISTORY] query failed",
			slog.String("room_id", roomID),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}

	frames := make([]model.Frame, 0, len(msgs))
	for _, m := range msgs {
		frames = append(frames, m.Frame())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room_id":  roomID,
		"messages": frames,
	})
}

type announceRequest struct {
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
}

// Announce broadcasts an admin message into a room.
func (h *Handler) Announce(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var req announceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.SenderID == "" {
		req.SenderID = "admin"
	}

	h.chat.PublishAdmin(r.Context(), roomID, req.SenderID, req.Content)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// Stats reports live occupancy and shard distribution.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chat.Stats())
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
