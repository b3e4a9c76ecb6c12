// Package state holds the reducer output for a game and the deterministic
// fold that derives it from the event log. The same fold serves live
// updates, catch-up sync, and offline replay.
package state

import (
	"github.com/crossfold/crossfold/internal/game/event"
)

// Cell is one square of the grid.
type Cell struct {
	Value    string `json:"value"`
	Black    bool   `json:"black,omitempty"`
	Revealed bool   `json:"revealed,omitempty"`
	Bad      bool   `json:"bad,omitempty"`
	Good     bool   `json:"good,omitempty"`
	Pencil   bool   `json:"pencil,omitempty"`
	SolvedBy string `json:"solvedBy,omitempty"`
	Number   int    `json:"number,omitempty"`
}

// Clock tracks solve time. TotalTime accumulates only while running;
// TrueTotalTime accumulates across pauses. Both are milliseconds.
type Clock struct {
	Paused        bool  `json:"paused"`
	TotalTime     int64 `json:"totalTime"`
	TrueTotalTime int64 `json:"trueTotalTime"`
	LastUpdated   int64 `json:"lastUpdated"`
}

// User is a session member as seen by the reducer.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	TeamID      int    `json:"teamId,omitempty"`
}

// ChatMessage is one entry of the game chat.
type ChatMessage struct {
	Sender      string `json:"sender"`
	DisplayName string `json:"displayName,omitempty"`
	Text        string `json:"text"`
	Timestamp   int64  `json:"timestamp"`
}

// Cursor is a user's last reported grid position.
type Cursor struct {
	Row       int   `json:"r"`
	Col       int   `json:"c"`
	Timestamp int64 `json:"timestamp"`
}

// Team is a fixed competitive side. Team ids are a small closed set
// established at create time.
type Team struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// GameState is the authoritative state of a game, derived entirely from
// the event log. Nothing outside the reducer mutates it.
type GameState struct {
	Grid     [][]Cell          `json:"grid"`
	Solution [][]string        `json:"solution"`
	Clues    event.Clues       `json:"clues"`
	Info     event.PuzzleInfo  `json:"info"`
	Clock    Clock             `json:"clock"`
	Users    map[string]User   `json:"users"`
	Chat     []ChatMessage     `json:"chat"`
	Cursors  map[string]Cursor `json:"cursors"`
	Teams    map[int]Team      `json:"teams"`

	Solved bool `json:"solved"`

	// Competitive variant fields.
	Started       bool  `json:"started,omitempty"`
	StartedAt     int64 `json:"startedAt,omitempty"`
	CluesRevealed bool  `json:"cluesRevealed,omitempty"`
}

// inBounds reports whether the position addresses a real cell.
func (s *GameState) inBounds(p event.Position) bool {
	return p.Row >= 0 && p.Row < len(s.Grid) && p.Col >= 0 && p.Col < len(s.Grid[p.Row])
}

// solutionAt returns the solution value for a cell, or "" when the
// solution grid does not cover it.
func (s *GameState) solutionAt(p event.Position) string {
	if p.Row < 0 || p.Row >= len(s.Solution) || p.Col < 0 || p.Col >= len(s.Solution[p.Row]) {
		return ""
	}
	return s.Solution[p.Row][p.Col]
}

// numberGrid stamps standard crossword numbering: a cell gets a number when
// it starts an across or down run.
func numberGrid(grid [][]Cell) {
	next := 1
	for r := range grid {
		for c := range grid[r] {
			if grid[r][c].Black {
				continue
			}
			startsAcross := (c == 0 || grid[r][c-1].Black) && c+1 < len(grid[r]) && !grid[r][c+1].Black
			startsDown := (r == 0 || grid[r-1][c].Black) && r+1 < len(grid) && !grid[r+1][c].Black
			if startsAcross || startsDown {
				grid[r][c].Number = next
				next++
			}
		}
	}
}
