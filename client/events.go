package client

import "encoding/json"

// GameEvent is the wire shape of one game log entry. Params stay raw; the
// embedder decodes them per type.
type GameEvent struct {
	Type          string          `json:"type"`
	User          string          `json:"user,omitempty"`
	Timestamp     int64           `json:"timestamp"`
	UseServerTime bool            `json:"useServerTime,omitempty"`
	Params        json.RawMessage `json:"params,omitempty"`
}

// RoomEvent is the wire shape of one room log entry.
type RoomEvent struct {
	Type          string          `json:"type"`
	UID           string          `json:"uid"`
	Timestamp     int64           `json:"timestamp"`
	UseServerTime bool            `json:"useServerTime,omitempty"`
	Params        json.RawMessage `json:"params,omitempty"`
}

// GameEventPush carries a broadcast game event with its game id.
type GameEventPush struct {
	GID   string    `json:"gid"`
	Event GameEvent `json:"event"`
}

// RoomEventPush carries a broadcast room event with its room id.
type RoomEventPush struct {
	RID   string    `json:"rid"`
	Event RoomEvent `json:"event"`
}

// LatencyPong reports the relay's clock against the ping's send time.
type LatencyPong struct {
	ClientTimestamp int64 `json:"clientTimestamp"`
	ServerTimestamp int64 `json:"serverTimestamp"`
}

// request is the client-to-server envelope.
type request struct {
	ID     string          `json:"id"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// message is the server-to-client envelope.
type message struct {
	ID     string          `json:"id,omitempty"`
	Action string          `json:"action,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
