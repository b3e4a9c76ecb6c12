// Package relay implements the room-based broadcast relay: an ack-based
// socket protocol over persistent websocket connections that validates,
// persists, and fans out game and room events.
package relay

import (
	"encoding/json"

	"github.com/crossfold/crossfold/internal/game/event"
	"github.com/crossfold/crossfold/internal/room"
)

// Client-initiated actions. Every request is acknowledged.
const (
	ActionJoinGame          = "join_game"
	ActionLeaveGame         = "leave_game"
	ActionJoinRoom          = "join_room"
	ActionLeaveRoom         = "leave_room"
	ActionSyncAllGameEvents = "sync_all_game_events"
	ActionSyncAllRoomEvents = "sync_all_room_events"
	ActionGameEvent         = "game_event"
	ActionRoomEvent         = "room_event"
	ActionLatencyPing       = "latency_ping"
)

// Server push actions.
const (
	PushGameEvent   = "game_event"
	PushRoomEvent   = "room_event"
	PushLatencyPong = "latency_pong"
)

// Request is the client-to-server envelope. ID correlates the ack.
type Request struct {
	ID     string          `json:"id"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Message is the server-to-client envelope: an ack when ID is set, a push
// when Action is set.
type Message struct {
	ID     string          `json:"id,omitempty"`
	Action string          `json:"action,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Error carries a machine-readable code plus a human-readable reason.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

// Error codes surfaced in acks.
const (
	CodeBadRequest  = "bad_request"
	CodeInvalid     = "invalid_event"
	CodeUnavailable = "storage_unavailable"
)

// GameRef addresses a game for join/leave/sync requests.
type GameRef struct {
	GID string `json:"gid"`
}

// RoomRef addresses a room for join/leave/sync requests.
type RoomRef struct {
	RID string `json:"rid"`
}

// GameEventPayload submits or pushes one game event.
type GameEventPayload struct {
	GID   string      `json:"gid"`
	Event event.Event `json:"event"`
}

// RoomEventPayload submits or pushes one room event.
type RoomEventPayload struct {
	RID   string     `json:"rid"`
	Event room.Event `json:"event"`
}

// LatencyPing carries the client's send time in epoch milliseconds.
type LatencyPing struct {
	Timestamp int64 `json:"timestamp"`
}

// LatencyPong echoes the client timestamp alongside the relay's clock. The
// exchange is observational only.
type LatencyPong struct {
	ClientTimestamp int64 `json:"clientTimestamp"`
	ServerTimestamp int64 `json:"serverTimestamp"`
}

// gameRoomKey and roomRoomKey double as hub room names and bridge channel
// names, so a persisted event broadcasts under the same key everywhere.
func gameRoomKey(gid string) string { return "game:" + gid }
func roomRoomKey(rid string) string { return "room:" + rid }
