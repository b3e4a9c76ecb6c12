package event

import (
	"encoding/json"
	"fmt"
)

// Position addresses a single grid cell.
type Position struct {
	Row int `json:"r"`
	Col int `json:"c"`
}

// Scope selects the cells a check or reveal operates on: an explicit list
// of positions, the whole grid, or the word under the acting user's cursor.
type Scope struct {
	Cells []Position
	All   bool
	Word  bool
}

const (
	scopeAll  = "puzzle"
	scopeWord = "word"
)

// UnmarshalJSON accepts either a JSON array of positions or one of the
// sentinel strings "puzzle" and "word".
func (s *Scope) UnmarshalJSON(data []byte) error {
	var sentinel string
	if err := json.Unmarshal(data, &sentinel); err == nil {
		switch sentinel {
		case scopeAll:
			*s = Scope{All: true}
			return nil
		case scopeWord:
			*s = Scope{Word: true}
			return nil
		default:
			return fmt.Errorf("unknown scope sentinel %q", sentinel)
		}
	}
	var cells []Position
	if err := json.Unmarshal(data, &cells); err != nil {
		return fmt.Errorf("scope must be a position list or sentinel: %w", err)
	}
	*s = Scope{Cells: cells}
	return nil
}

// MarshalJSON reverses UnmarshalJSON.
func (s Scope) MarshalJSON() ([]byte, error) {
	switch {
	case s.All:
		return json.Marshal(scopeAll)
	case s.Word:
		return json.Marshal(scopeWord)
	default:
		return json.Marshal(s.Cells)
	}
}

// PuzzleInfo carries puzzle metadata.
type PuzzleInfo struct {
	Title       string `json:"title"`
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
}

// Clues holds the across and down clue texts keyed by clue number.
type Clues struct {
	Across map[int]string `json:"across"`
	Down   map[int]string `json:"down"`
}

// PuzzleContent is the full puzzle embedded in a create event. Black
// squares are represented by "." in both grid and solution.
type PuzzleContent struct {
	Info     PuzzleInfo `json:"info"`
	Grid     [][]string `json:"grid"`
	Solution [][]string `json:"solution"`
	Clues    Clues      `json:"clues"`
	Circles  []Position `json:"circles,omitempty"`
	Shades   []Position `json:"shades,omitempty"`
}

// CreateParams seeds a fresh game from a puzzle.
type CreateParams struct {
	PID  string        `json:"pid"`
	Game PuzzleContent `json:"game"`
}

// UpdateCellParams sets one cell's value.
type UpdateCellParams struct {
	Cell      Position `json:"cell"`
	Value     string   `json:"value"`
	Pencil    bool     `json:"pencil,omitempty"`
	Autocheck bool     `json:"autocheck,omitempty"`
}

// CheckParams flags wrong cells within a scope.
type CheckParams struct {
	Scope Scope `json:"scope"`
}

// RevealParams writes solution values within a scope.
type RevealParams struct {
	Scope Scope `json:"scope"`
}

// ChatMessageParams appends a chat message. The schema is intentionally
// open so clients can attach display metadata.
type ChatMessageParams struct {
	Text        string `json:"text"`
	DisplayName string `json:"displayName,omitempty"`
}

// UpdateDisplayNameParams renames a user.
type UpdateDisplayNameParams struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// UpdateTeamNameParams renames a team.
type UpdateTeamNameParams struct {
	TeamID int    `json:"teamId"`
	Name   string `json:"name"`
}

// UpdateTeamIDParams moves a user onto a team.
type UpdateTeamIDParams struct {
	ID     string `json:"id"`
	TeamID int    `json:"teamId"`
}

// UpdateCursorParams moves a user's cursor.
type UpdateCursorParams struct {
	ID   string   `json:"id"`
	Cell Position `json:"cell"`
}

// Clock actions.
const (
	ClockStart = "start"
	ClockPause = "pause"
	ClockReset = "reset"
)

// UpdateClockParams starts, pauses, or resets the clock.
type UpdateClockParams struct {
	Action string `json:"action"`
}
