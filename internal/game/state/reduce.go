package state

import (
	"encoding/json"

	"github.com/crossfold/crossfold/internal/game/event"
)

// handlerFunc applies one event type to a non-nil state.
type handlerFunc func(*GameState, event.Event) *GameState

// handlers maps each reducible event type to its handler. Types absent
// here pass state through unchanged, so a log written by a newer server
// stays replayable.
var handlers = map[event.Type]handlerFunc{
	event.TypeCreate:            applyCreate,
	event.TypeUpdateCell:        applyUpdateCell,
	event.TypeCheck:             applyCheck,
	event.TypeReveal:            applyReveal,
	event.TypeRevealAllClues:    applyRevealAllClues,
	event.TypeStartGame:         applyStartGame,
	event.TypeMarkSolved:        applyMarkSolved,
	event.TypeSendChatMessage:   applyChatMessage,
	event.TypeChatPing:          applyChatPing,
	event.TypeUpdateDisplayName: applyUpdateDisplayName,
	event.TypeUpdateTeamName:    applyUpdateTeamName,
	event.TypeUpdateTeamID:      applyUpdateTeamID,
	event.TypeUpdateCursor:      applyUpdateCursor,
	event.TypeUpdateClock:       applyUpdateClock,
}

// Apply folds one event into the state. A nil state means no baseline yet:
// only a create event produces state, anything else passes through. Apply
// mutates and returns the given state; callers that need the previous
// value must copy first.
//
// Apply never reads the wall clock. All time comes from event timestamps,
// so replaying the same ordered log always yields the same state.
func Apply(state *GameState, evt event.Event) *GameState {
	handler, ok := handlers[evt.Type]
	if !ok {
		return state
	}
	if state == nil && evt.Type != event.TypeCreate {
		return state
	}
	return handler(state, evt)
}

// Replay left-folds an ordered event slice from scratch.
func Replay(events []event.Event) *GameState {
	var state *GameState
	for _, evt := range events {
		state = Apply(state, evt)
	}
	return state
}

func applyCreate(_ *GameState, evt event.Event) *GameState {
	var p event.CreateParams
	if err := json.Unmarshal(evt.Params, &p); err != nil {
		return nil
	}

	grid := make([][]Cell, len(p.Game.Grid))
	for r, row := range p.Game.Grid {
		grid[r] = make([]Cell, len(row))
		for c, value := range row {
			if value == "." {
				grid[r][c] = Cell{Black: true}
				continue
			}
			grid[r][c] = Cell{Value: value}
		}
	}
	numberGrid(grid)

	return &GameState{
		Grid:     grid,
		Solution: p.Game.Solution,
		Clues:    p.Game.Clues,
		Info:     p.Game.Info,
		Clock: Clock{
			Paused:      true,
			LastUpdated: evt.Timestamp,
		},
		Users:   map[string]User{},
		Chat:    []ChatMessage{},
		Cursors: map[string]Cursor{},
		Teams: map[int]Team{
			1: {ID: 1, Name: "Team 1"},
			2: {ID: 2, Name: "Team 2"},
		},
	}
}

func applyUpdateCell(state *GameState, evt event.Event) *GameState {
	var p event.UpdateCellParams
	if err := json.Unmarshal(evt.Params, &p); err != nil {
		return state
	}
	if !state.inBounds(p.Cell) {
		return state
	}
	cell := &state.Grid[p.Cell.Row][p.Cell.Col]
	if cell.Black || cell.Revealed || cell.Good {
		return state
	}

	cell.Value = p.Value
	cell.Pencil = p.Pencil
	cell.Bad = false
	solution := state.solutionAt(p.Cell)
	if p.Value != "" && p.Value == solution && cell.SolvedBy == "" {
		cell.SolvedBy = solverID(state, evt.User)
	}
	if p.Autocheck && p.Value != "" {
		if p.Value == solution {
			cell.Good = true
		} else {
			cell.Bad = true
		}
	}
	return state
}

func applyCheck(state *GameState, evt event.Event) *GameState {
	var p event.CheckParams
	if err := json.Unmarshal(evt.Params, &p); err != nil {
		return state
	}
	for _, pos := range resolveScope(state, p.Scope, evt.User) {
		cell := &state.Grid[pos.Row][pos.Col]
		if cell.Black || cell.Value == "" {
			continue
		}
		if cell.Value == state.solutionAt(pos) {
			cell.Good = true
		} else {
			cell.Bad = true
		}
	}
	return state
}

func applyReveal(state *GameState, evt event.Event) *GameState {
	var p event.RevealParams
	if err := json.Unmarshal(evt.Params, &p); err != nil {
		return state
	}
	for _, pos := range resolveScope(state, p.Scope, evt.User) {
		cell := &state.Grid[pos.Row][pos.Col]
		if cell.Black {
			continue
		}
		cell.Value = state.solutionAt(pos)
		cell.Revealed = true
		cell.Bad = false
		cell.Good = true
	}
	return state
}

func applyRevealAllClues(state *GameState, _ event.Event) *GameState {
	state.CluesRevealed = true
	return state
}

func applyStartGame(state *GameState, evt event.Event) *GameState {
	state.Started = true
	state.StartedAt = evt.Timestamp
	return state
}

func applyMarkSolved(state *GameState, evt event.Event) *GameState {
	state.accumulateClock(evt.Timestamp)
	state.Clock.Paused = true
	state.Solved = true
	return state
}

func applyChatMessage(state *GameState, evt event.Event) *GameState {
	var p event.ChatMessageParams
	if err := json.Unmarshal(evt.Params, &p); err != nil {
		return state
	}
	state.Chat = append(state.Chat, ChatMessage{
		Sender:      evt.User,
		DisplayName: p.DisplayName,
		Text:        p.Text,
		Timestamp:   evt.Timestamp,
	})
	return state
}

// applyChatPing is observational only; the ping itself carries no state.
func applyChatPing(state *GameState, _ event.Event) *GameState {
	return state
}

func applyUpdateDisplayName(state *GameState, evt event.Event) *GameState {
	var p event.UpdateDisplayNameParams
	if err := json.Unmarshal(evt.Params, &p); err != nil {
		return state
	}
	id := p.ID
	if id == "" {
		id = evt.User
	}
	if id == "" {
		return state
	}
	user := state.Users[id]
	user.ID = id
	user.DisplayName = p.DisplayName
	state.Users[id] = user
	return state
}

func applyUpdateTeamName(state *GameState, evt event.Event) *GameState {
	var p event.UpdateTeamNameParams
	if err := json.Unmarshal(evt.Params, &p); err != nil {
		return state
	}
	team, ok := state.Teams[p.TeamID]
	if !ok {
		return state
	}
	team.Name = p.Name
	state.Teams[p.TeamID] = team
	return state
}

// applyUpdateTeamID is a silent no-op when the team id is outside the
// fixed set or the user is unknown; the user may have left mid-flight.
func applyUpdateTeamID(state *GameState, evt event.Event) *GameState {
	var p event.UpdateTeamIDParams
	if err := json.Unmarshal(evt.Params, &p); err != nil {
		return state
	}
	if _, ok := state.Teams[p.TeamID]; !ok {
		return state
	}
	user, ok := state.Users[p.ID]
	if !ok {
		return state
	}
	user.TeamID = p.TeamID
	state.Users[p.ID] = user
	return state
}

func applyUpdateCursor(state *GameState, evt event.Event) *GameState {
	var p event.UpdateCursorParams
	if err := json.Unmarshal(evt.Params, &p); err != nil {
		return state
	}
	id := p.ID
	if id == "" {
		id = evt.User
	}
	if id == "" {
		return state
	}
	state.Cursors[id] = Cursor{
		Row:       p.Cell.Row,
		Col:       p.Cell.Col,
		Timestamp: evt.Timestamp,
	}
	return state
}

func applyUpdateClock(state *GameState, evt event.Event) *GameState {
	var p event.UpdateClockParams
	if err := json.Unmarshal(evt.Params, &p); err != nil {
		return state
	}
	state.accumulateClock(evt.Timestamp)
	switch p.Action {
	case event.ClockStart:
		state.Clock.Paused = false
	case event.ClockPause:
		state.Clock.Paused = true
	case event.ClockReset:
		state.Clock.TotalTime = 0
		state.Clock.TrueTotalTime = 0
	}
	return state
}

// accumulateClock folds the elapsed delta since the last clock touch into
// the accumulators and advances LastUpdated to ts.
func (s *GameState) accumulateClock(ts int64) {
	delta := ts - s.Clock.LastUpdated
	if delta > 0 {
		s.Clock.TrueTotalTime += delta
		if !s.Clock.Paused {
			s.Clock.TotalTime += delta
		}
	}
	s.Clock.LastUpdated = ts
}

// solverID prefers the user's team so competitive fills credit the side,
// not the individual.
func solverID(state *GameState, userID string) string {
	if user, ok := state.Users[userID]; ok && user.TeamID != 0 {
		if team, ok := state.Teams[user.TeamID]; ok {
			return team.Name
		}
	}
	return userID
}

// resolveScope expands a scope into concrete in-bounds positions. The word
// sentinel expands to the across run through the acting user's cursor; with
// no cursor on record it resolves to nothing.
func resolveScope(state *GameState, scope event.Scope, userID string) []event.Position {
	switch {
	case scope.All:
		var all []event.Position
		for r := range state.Grid {
			for c := range state.Grid[r] {
				all = append(all, event.Position{Row: r, Col: c})
			}
		}
		return all
	case scope.Word:
		cursor, ok := state.Cursors[userID]
		if !ok {
			return nil
		}
		return acrossRun(state, event.Position{Row: cursor.Row, Col: cursor.Col})
	default:
		var cells []event.Position
		for _, pos := range scope.Cells {
			if state.inBounds(pos) {
				cells = append(cells, pos)
			}
		}
		return cells
	}
}

// acrossRun returns the maximal horizontal run of non-black cells through p.
func acrossRun(state *GameState, p event.Position) []event.Position {
	if !state.inBounds(p) || state.Grid[p.Row][p.Col].Black {
		return nil
	}
	start := p.Col
	for start > 0 && !state.Grid[p.Row][start-1].Black {
		start--
	}
	var run []event.Position
	for c := start; c < len(state.Grid[p.Row]) && !state.Grid[p.Row][c].Black; c++ {
		run = append(run, event.Position{Row: p.Row, Col: c})
	}
	return run
}
