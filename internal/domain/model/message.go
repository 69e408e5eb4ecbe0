package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

//go:generate stringer -type=MessageKind
type MessageKind int16

const (
	// [ZERO_VALUE_GUARD] WE START FROM 1 TO DISTINGUISH FROM UNINITIALIZED DATA
	KindUser MessageKind = iota + 1
	KindAdmin
	KindSystem
	KindStatus
)

var kindNames = map[MessageKind]string{
	KindUser:   "user",
	KindAdmin:  "admin",
	KindSystem: "system",
	KindStatus: "status",
}

var kindValues = map[string]MessageKind{
	"user":   KindUser,
	"admin":  KindAdmin,
	"system": KindSystem,
	"status": KindStatus,
}

func (k MessageKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

func (k MessageKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// ParseKind maps a wire tag onto the closed kind set. An unknown tag is an
// error, never a silent fall-through.
func ParseKind(s string) (MessageKind, error) {
	if k, ok := kindValues[s]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("model: unknown message kind %q", s)
}

// [MESSAGE] CORE ENTITY FLOWING THROUGH THE BROADCAST PATH
// Immutable once constructed; never mutated after it enters a mailbox
// or a room history ring.
type Message struct {
	ID       uuid.UUID
	RoomID   string
	SenderID string // empty for system and status messages
	Nickname string
	Kind     MessageKind
	Content  any // string for chat content, object for status payloads
	SentAt   time.Time
}

func NewUserMessage(roomID, senderID, nickname, content string) *Message {
	return &Message{
		ID:       uuid.New(),
		RoomID:   roomID,
		SenderID: senderID,
		Nickname: nickname,
		Kind:     KindUser,
		Content:  content,
		SentAt:   time.Now(),
	}
}

func NewAdminMessage(roomID, senderID, content string) *Message {
	return &Message{
		ID:       uuid.New(),
		RoomID:   roomID,
		SenderID: senderID,
		Nickname: "admin",
		Kind:     KindAdmin,
		Content:  content,
		SentAt:   time.Now(),
	}
}

func NewSystemMessage(roomID, content string) *Message {
	return &Message{
		ID:       uuid.New(),
		RoomID:   roomID,
		Nickname: "system",
		Kind:     KindSystem,
		Content:  content,
		SentAt:   time.Now(),
	}
}

func NewStatusMessage(roomID string, status *RoomStatus) *Message {
	return &Message{
		ID:      uuid.New(),
		RoomID:  roomID,
		Kind:    KindStatus,
		Content: status,
		SentAt:  time.Now(),
	}
}
