// Package event defines the typed mutation events that make up a game's
// append-only log, and the validation gate every inbound event passes
// before it may be persisted.
package event

import (
	"encoding/json"
	"strings"
)

// Type identifies the type of a game event.
type Type string

// Game lifecycle events.
const (
	// TypeCreate seeds a game with its puzzle. It is the logical root of
	// every game's log.
	TypeCreate Type = "create"
	// TypeStartGame marks the start of a competitive game.
	TypeStartGame Type = "startGame"
	// TypeMarkSolved records that the grid has been completed.
	TypeMarkSolved Type = "markSolved"
)

// Grid mutation events.
const (
	// TypeUpdateCell sets a single cell's value.
	TypeUpdateCell Type = "updateCell"
	// TypeCheck flags incorrect, non-empty cells within a scope.
	TypeCheck Type = "check"
	// TypeReveal writes solution values into cells within a scope.
	TypeReveal Type = "reveal"
	// TypeRevealAllClues makes every clue visible in competitive games.
	TypeRevealAllClues Type = "revealAllClues"
)

// Presence and session events.
const (
	// TypeSendChatMessage appends a chat message.
	TypeSendChatMessage Type = "sendChatMessage"
	// TypeChatPing records a chat attention ping. Params are open.
	TypeChatPing Type = "chatPing"
	// TypeUpdateDisplayName renames a user.
	TypeUpdateDisplayName Type = "updateDisplayName"
	// TypeUpdateTeamName renames a team.
	TypeUpdateTeamName Type = "updateTeamName"
	// TypeUpdateTeamID moves a user onto a team.
	TypeUpdateTeamID Type = "updateTeamId"
	// TypeUpdateCursor moves a user's cursor.
	TypeUpdateCursor Type = "updateCursor"
	// TypeUpdateClock starts, pauses, or resets the game clock.
	TypeUpdateClock Type = "updateClock"
)

// Event is the envelope shared by every entry in a game's log.
//
// Timestamp is epoch milliseconds. A client that wants the server to stamp
// the event sets UseServerTime instead of guessing; the relay resolves the
// flag once at ingress.
type Event struct {
	Type          Type            `json:"type"`
	User          string          `json:"user,omitempty"`
	Timestamp     int64           `json:"timestamp"`
	UseServerTime bool            `json:"useServerTime,omitempty"`
	Params        json.RawMessage `json:"params,omitempty"`
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}
