package model

//go:generate stringer -type=CloseReason
type CloseReason int16

// Application-level close reasons. Each maps to a distinct WebSocket close
// code in the 4000 range so clients can tell supersession from failure.
const (
	CloseRoomNotFound CloseReason = iota + 1
	CloseRoomFull
	CloseReplaced
	CloseTooManyErrors
	CloseServerShutdown
)

var closeCodes = map[CloseReason]int{
	CloseRoomNotFound:   4000,
	CloseRoomFull:       4001,
	CloseReplaced:       4002,
	CloseTooManyErrors:  4003,
	CloseServerShutdown: 4004,
}

var closeTexts = map[CloseReason]string{
	CloseRoomNotFound:   "room not found",
	CloseRoomFull:       "room is full",
	CloseReplaced:       "replaced by new connection",
	CloseTooManyErrors:  "too many errors",
	CloseServerShutdown: "server shutdown",
}

func (r CloseReason) Code() int {
	if c, ok := closeCodes[r]; ok {
		return c
	}
	return 1000
}

func (r CloseReason) Text() string {
	if t, ok := closeTexts[r]; ok {
		return t
	}
	return "closed"
}
