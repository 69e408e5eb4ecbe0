package model

import "time"

type HubStats struct {
	TotalConnections int           `json:"total_connections"`
	Uptime           time.Duration `json:"uptime"`
	Rooms            []RoomStats   `json:"rooms"`
	Shards           []ShardStats  `json:"shards,omitempty"`
}

type RoomStats struct {
	RoomID       string `json:"room_id"`
	Title        string `json:"title"`
	Participants int    `json:"participants"`
}

type ShardStats struct {
	ShardID     int `json:"shard_id"`
	Connections int `json:"connections"`
}
