package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// definition declares how one event type's params are validated.
type definition struct {
	// decode strictly parses the params payload into the type's params
	// struct. nil means the type carries no params.
	decode func(json.RawMessage) error
	// open permits fields beyond the params struct (chat metadata).
	open bool
}

// definitions maps each known event type to its validation rules. An event
// whose type is absent here is rejected at ingress; the reducer separately
// tolerates unknown types so old servers can replay newer logs.
var definitions = map[Type]definition{
	TypeCreate: {decode: func(raw json.RawMessage) error {
		var p CreateParams
		if err := decodeStrict(raw, &p); err != nil {
			return err
		}
		return validateCreate(p)
	}},
	TypeUpdateCell: {decode: func(raw json.RawMessage) error {
		var p UpdateCellParams
		if err := decodeStrict(raw, &p); err != nil {
			return err
		}
		if p.Cell.Row < 0 || p.Cell.Col < 0 {
			return fmt.Errorf("cell position out of range r=%d c=%d", p.Cell.Row, p.Cell.Col)
		}
		return nil
	}},
	TypeCheck: {decode: func(raw json.RawMessage) error {
		var p CheckParams
		return decodeStrict(raw, &p)
	}},
	TypeReveal: {decode: func(raw json.RawMessage) error {
		var p RevealParams
		return decodeStrict(raw, &p)
	}},
	TypeRevealAllClues: {},
	TypeStartGame:      {},
	TypeMarkSolved:     {},
	TypeSendChatMessage: {open: true, decode: func(raw json.RawMessage) error {
		var p ChatMessageParams
		if err := decodeOpen(raw, &p); err != nil {
			return err
		}
		if strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("chat message text is required")
		}
		return nil
	}},
	TypeChatPing: {open: true},
	TypeUpdateDisplayName: {decode: func(raw json.RawMessage) error {
		var p UpdateDisplayNameParams
		if err := decodeStrict(raw, &p); err != nil {
			return err
		}
		if strings.TrimSpace(p.DisplayName) == "" {
			return fmt.Errorf("display name is required")
		}
		return nil
	}},
	TypeUpdateTeamName: {decode: func(raw json.RawMessage) error {
		var p UpdateTeamNameParams
		if err := decodeStrict(raw, &p); err != nil {
			return err
		}
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("team name is required")
		}
		return nil
	}},
	TypeUpdateTeamID: {decode: func(raw json.RawMessage) error {
		var p UpdateTeamIDParams
		return decodeStrict(raw, &p)
	}},
	TypeUpdateCursor: {decode: func(raw json.RawMessage) error {
		var p UpdateCursorParams
		if err := decodeStrict(raw, &p); err != nil {
			return err
		}
		if p.Cell.Row < 0 || p.Cell.Col < 0 {
			return fmt.Errorf("cursor position out of range r=%d c=%d", p.Cell.Row, p.Cell.Col)
		}
		return nil
	}},
	TypeUpdateClock: {decode: func(raw json.RawMessage) error {
		var p UpdateClockParams
		if err := decodeStrict(raw, &p); err != nil {
			return err
		}
		switch p.Action {
		case ClockStart, ClockPause, ClockReset:
			return nil
		default:
			return fmt.Errorf("unknown clock action %q", p.Action)
		}
	}},
}

// Validate gates a candidate event before it may enter the log. It checks
// the base envelope, the type discriminant, and the per-type params schema,
// and has no side effects. The returned event is the validated input.
func Validate(evt Event) (Event, error) {
	if !evt.Type.IsValid() {
		return Event{}, fmt.Errorf("event type is required")
	}
	if !evt.UseServerTime && evt.Timestamp <= 0 {
		return Event{}, fmt.Errorf("event timestamp must be positive")
	}
	def, ok := definitions[evt.Type]
	if !ok {
		return Event{}, fmt.Errorf("unknown event type %q", evt.Type)
	}
	if def.decode != nil {
		if err := def.decode(evt.Params); err != nil {
			return Event{}, fmt.Errorf("invalid %s params: %w", evt.Type, err)
		}
	}
	return evt, nil
}

// KnownType reports whether the type has a registered definition.
func KnownType(t Type) bool {
	_, ok := definitions[t]
	return ok
}

func validateCreate(p CreateParams) error {
	if strings.TrimSpace(p.PID) == "" {
		return fmt.Errorf("pid is required")
	}
	if len(p.Game.Grid) == 0 {
		return fmt.Errorf("grid is required")
	}
	if len(p.Game.Solution) != len(p.Game.Grid) {
		return fmt.Errorf("solution has %d rows, grid has %d", len(p.Game.Solution), len(p.Game.Grid))
	}
	width := len(p.Game.Grid[0])
	for r := range p.Game.Grid {
		if len(p.Game.Grid[r]) != width {
			return fmt.Errorf("grid row %d has %d cells, want %d", r, len(p.Game.Grid[r]), width)
		}
		if len(p.Game.Solution[r]) != width {
			return fmt.Errorf("solution row %d has %d cells, want %d", r, len(p.Game.Solution[r]), width)
		}
	}
	return nil
}

func decodeStrict(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		return fmt.Errorf("params are required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	return nil
}

func decodeOpen(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		return fmt.Errorf("params are required")
	}
	return json.Unmarshal(raw, target)
}
