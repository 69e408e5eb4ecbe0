package model

// RoomStatus is the payload of a status-kind Message. It carries the live
// participant count of every configured room so a single frame gives the
// client the full occupancy picture.
type RoomStatus struct {
	Counts map[string]int `json:"room_status"`
}
