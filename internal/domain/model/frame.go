package model

import "time"

// Frame is the wire representation of a Message on the WebSocket transport.
type Frame struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	UserID    *string `json:"user_id"`
	Nickname  string  `json:"nickname"`
	Content   any     `json:"content"`
	RoomID    string  `json:"room_id"`
	Timestamp string  `json:"timestamp"`
}

// Frame maps the domain entity onto the client-facing JSON schema.
// SenderID stays null for system and status messages.
func (m *Message) Frame() Frame {
	f := Frame{
		ID:        m.ID.String(),
		Type:      m.Kind.String(),
		Nickname:  m.Nickname,
		Content:   m.Content,
		RoomID:    m.RoomID,
		Timestamp: m.SentAt.Format(time.RFC3339Nano),
	}
	if m.SenderID != "" {
		sender := m.SenderID
		f.UserID = &sender
	}
	return f
}

// ControlFrame is a lightweight transport-level frame that never enters the
// broadcast path (connection_established, ping, pong).
type ControlFrame struct {
	Type string `json:"type"`
}

const (
	ControlEstablished = "connection_established"
	ControlPing        = "ping"
	ControlPong        = "pong"
)
