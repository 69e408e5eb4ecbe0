package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talkwire/room-broadcast-service/internal/adapter/pubsub"
	"github.com/talkwire/room-broadcast-service/internal/domain/model"
	"github.com/talkwire/room-broadcast-service/internal/domain/registry"
	"github.com/talkwire/room-broadcast-service/internal/storage"
)

// [CHAT_SERVICE] PRIMARY INTERFACE FOR TRANSPORT HANDLERS
type Chatter interface {
	// Join registers a connection and returns it together with the room's
	// recent history for seeding the new client.
	Join(ctx context.Context, userID, roomID string, tr registry.Transport) (*registry.Conn, []*model.Message, error)
	// Leave removes the connection and announces the departure. Superseded
	// handles detach silently.
	Leave(conn *registry.Conn)
	// Publish broadcasts a user message from a live connection.
	Publish(ctx context.Context, conn *registry.Conn, content string)
	// PublishAdmin broadcasts an admin message under the admin mask.
	PublishAdmin(ctx context.Context, roomID, senderID, content string)
	// History reads durable history; never consulted for broadcast decisions.
	History(ctx context.Context, roomID string, before time.Time, limit int) ([]*model.Message, error)
	Stats() model.HubStats
}

// ChatService wires the registry, the nickname directory and the archival
// sinks behind one orchestration surface.
type ChatService struct {
	registry  *registry.Registry
	names     *storage.NicknameDirectory
	store     storage.MessageStore
	archiver  pubsub.Archiver
	logger    *slog.Logger
	startedAt time.Time
}

func NewChatService(reg *registry.Registry, names *storage.NicknameDirectory, store storage.MessageStore, archiver pubsub.Archiver, logger *slog.Logger) *ChatService {
	return &ChatService{
		registry:  reg,
		names:     names,
		store:     store,
		archiver:  archiver,
		logger:    logger,
		startedAt: time.Now(),
	}
}

func (s *ChatService) Join(ctx context.Context, userID, roomID string, tr registry.Transport) (*registry.Conn, []*model.Message, error) {
	nickname := s.names.Nickname(userID)

	conn, err := s.registry.Connect(userID, nickname, roomID, tr)
	if err != nil {
		return nil, nil, err
	}

	seed := s.registry.History(roomID)

	join := model.NewSystemMessage(roomID, fmt.Sprintf("%s joined the room", nickname))
	s.registry.Broadcast(join)
	s.archiver.Archive(ctx, join)

	return conn, seed, nil
}

func (s *ChatService) Leave(conn *registry.Conn) {
	// A false return means a newer connection took over the slot; the user
	// never left the room, so there is nothing to announce.
	if !s.registry.Disconnect(conn) {
		return
	}

	leave := model.NewSystemMessage(conn.RoomID(), fmt.Sprintf("%s left the room", conn.Nickname()))
	if s.registry.Broadcast(leave) {
		s.archiver.Archive(context.Background(), leave)
	}
}

func (s *ChatService) Publish(ctx context.Context, conn *registry.Conn, content string) {
	msg := model.NewUserMessage(conn.RoomID(), conn.UserID(), conn.Nickname(), content)
	s.registry.Broadcast(msg)
	s.archiver.Archive(ctx, msg)
}

func (s *ChatService) PublishAdmin(ctx context.Context, roomID, senderID, content string) {
	msg := model.NewAdminMessage(roomID, senderID, content)
	if !s.registry.Broadcast(msg) {
		s.logger.Warn("admin message to unknown room dropped", "room_id", roomID)
		return
	}
	s.archiver.Archive(ctx, msg)
}

func (s *ChatService) History(ctx context.Context, roomID string, before time.Time, limit int) ([]*model.Message, error) {
	if !s.registry.HasRoom(roomID) {
		return nil, registry.ErrRoomNotFound
	}
	return s.store.GetMessages(ctx, roomID, before, limit)
}

func (s *ChatService) Stats() model.HubStats {
	rooms := s.registry.Rooms()
	total := 0
	for _, r := range rooms {
		total += r.Participants
	}

	perShard := make(map[int]int)
	s.registry.EachConnection(func(c *registry.Conn) {
		if c.Alive() {
			perShard[c.ShardID()]++
		}
	})
	shards := make([]model.ShardStats, 0, len(perShard))
	for id := 0; id < s.registry.Router().Shards(); id++ {
		if n := perShard[id]; n > 0 {
			shards = append(shards, model.ShardStats{ShardID: id, Connections: n})
		}
	}

	return model.HubStats{
		TotalConnections: total,
		Uptime:           time.Since(s.startedAt),
		Rooms:            rooms,
		Shards:           shards,
	}
}
