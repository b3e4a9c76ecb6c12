// Package room defines the lightweight room coordination events: presence
// pings and "which game is this room playing" pointers. Rooms share the
// store and relay shape of games but carry a much smaller schema.
package room

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Type identifies the type of a room event.
type Type string

const (
	// TypeUserPing records that a user is present in the room.
	TypeUserPing Type = "USER_PING"
	// TypeSetGame points the room at a game.
	TypeSetGame Type = "SET_GAME"
)

// Event is the envelope for room log entries. Timestamp is epoch
// milliseconds.
type Event struct {
	Type          Type            `json:"type"`
	UID           string          `json:"uid"`
	Timestamp     int64           `json:"timestamp"`
	UseServerTime bool            `json:"useServerTime,omitempty"`
	Params        json.RawMessage `json:"params,omitempty"`
}

// UserPingParams carries the pinging user's id. It must match the
// envelope uid.
type UserPingParams struct {
	UID string `json:"uid"`
}

// SetGameParams points the room at a game.
type SetGameParams struct {
	GID string `json:"gid"`
}

// Validate gates a candidate room event. It mirrors the game event
// validator: envelope first, then the per-type params schema.
func Validate(evt Event) (Event, error) {
	if strings.TrimSpace(string(evt.Type)) == "" {
		return Event{}, fmt.Errorf("event type is required")
	}
	if strings.TrimSpace(evt.UID) == "" {
		return Event{}, fmt.Errorf("uid is required")
	}
	if !evt.UseServerTime && evt.Timestamp <= 0 {
		return Event{}, fmt.Errorf("event timestamp must be positive")
	}
	switch evt.Type {
	case TypeUserPing:
		var p UserPingParams
		if err := decodeStrict(evt.Params, &p); err != nil {
			return Event{}, fmt.Errorf("invalid %s params: %w", evt.Type, err)
		}
		if p.UID != evt.UID {
			return Event{}, fmt.Errorf("uid mismatch: params uid %q does not match envelope uid %q", p.UID, evt.UID)
		}
	case TypeSetGame:
		var p SetGameParams
		if err := decodeStrict(evt.Params, &p); err != nil {
			return Event{}, fmt.Errorf("invalid %s params: %w", evt.Type, err)
		}
		if strings.TrimSpace(p.GID) == "" {
			return Event{}, fmt.Errorf("missing gid")
		}
	default:
		return Event{}, fmt.Errorf("unknown event type %q", evt.Type)
	}
	return evt, nil
}

func decodeStrict(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		return fmt.Errorf("params are required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
