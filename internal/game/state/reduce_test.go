package state

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/crossfold/crossfold/internal/game/event"
)

func createEvent(t *testing.T, ts int64) event.Event {
	t.Helper()
	params, err := json.Marshal(event.CreateParams{
		PID: "puzzle-1",
		Game: event.PuzzleContent{
			Info: event.PuzzleInfo{Title: "Mini"},
			Grid: [][]string{
				{"", "", ""},
				{"", ".", ""},
			},
			Solution: [][]string{
				{"C", "A", "T"},
				{"O", ".", "O"},
			},
			Clues: event.Clues{
				Across: map[int]string{1: "Feline"},
				Down:   map[int]string{1: "Raven's call"},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal create params: %v", err)
	}
	return event.Event{Type: event.TypeCreate, User: "host", Timestamp: ts, Params: params}
}

func gameEvent(t *testing.T, typ event.Type, user string, ts int64, params any) event.Event {
	t.Helper()
	evt := event.Event{Type: typ, User: user, Timestamp: ts}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal %s params: %v", typ, err)
		}
		evt.Params = raw
	}
	return evt
}

func TestReplayIsDeterministic(t *testing.T) {
	events := []event.Event{
		createEvent(t, 1000),
		gameEvent(t, event.TypeUpdateCell, "u1", 2000, event.UpdateCellParams{Cell: event.Position{Row: 0, Col: 0}, Value: "C"}),
		gameEvent(t, event.TypeSendChatMessage, "u1", 2500, event.ChatMessageParams{Text: "hi"}),
		gameEvent(t, event.TypeUpdateClock, "u1", 3000, event.UpdateClockParams{Action: event.ClockStart}),
	}
	first := Replay(events)
	second := Replay(events)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("replay diverged:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestReplayLastWriteWins(t *testing.T) {
	// Timestamps deliberately inverted: fold order decides, not clocks.
	events := []event.Event{
		createEvent(t, 1000),
		gameEvent(t, event.TypeUpdateCell, "u1", 9000, event.UpdateCellParams{Cell: event.Position{Row: 0, Col: 1}, Value: "X"}),
		gameEvent(t, event.TypeUpdateCell, "u2", 2000, event.UpdateCellParams{Cell: event.Position{Row: 0, Col: 1}, Value: "A"}),
	}
	st := Replay(events)
	if got := st.Grid[0][1].Value; got != "A" {
		t.Fatalf("cell value = %q, want %q", got, "A")
	}
}

func TestApplyNilStateIgnoresNonCreate(t *testing.T) {
	st := Apply(nil, gameEvent(t, event.TypeStartGame, "u1", 1000, nil))
	if st != nil {
		t.Fatalf("state = %+v, want nil", st)
	}
}

func TestApplyUnknownTypePassesThrough(t *testing.T) {
	st := Replay([]event.Event{createEvent(t, 1000)})
	before := *st
	got := Apply(st, event.Event{Type: event.Type("timeTravel"), Timestamp: 2000})
	if got != st {
		t.Fatal("unknown type should return the same state")
	}
	if !reflect.DeepEqual(before.Clock, got.Clock) {
		t.Fatalf("clock changed on unknown type: %+v", got.Clock)
	}
}

func TestCreateInitializesState(t *testing.T) {
	st := Replay([]event.Event{createEvent(t, 1000)})
	if st == nil {
		t.Fatal("replay returned nil state")
	}
	if !st.Grid[1][1].Black {
		t.Fatal("expected black cell at (1,1)")
	}
	if !st.Clock.Paused || st.Clock.LastUpdated != 1000 {
		t.Fatalf("clock = %+v, want paused at 1000", st.Clock)
	}
	if len(st.Teams) != 2 || st.Teams[1].Name != "Team 1" {
		t.Fatalf("teams = %+v, want two default teams", st.Teams)
	}
	if st.Grid[0][0].Number != 1 {
		t.Fatalf("cell (0,0) number = %d, want 1", st.Grid[0][0].Number)
	}
	if st.Grid[0][2].Number != 2 {
		t.Fatalf("cell (0,2) number = %d, want 2", st.Grid[0][2].Number)
	}
	if st.Grid[0][1].Number != 0 {
		t.Fatalf("cell (0,1) number = %d, want none", st.Grid[0][1].Number)
	}
}

func TestCheckMarksGoodAndBad(t *testing.T) {
	events := []event.Event{
		createEvent(t, 1000),
		gameEvent(t, event.TypeUpdateCell, "u1", 2000, event.UpdateCellParams{Cell: event.Position{Row: 0, Col: 0}, Value: "C"}),
		gameEvent(t, event.TypeUpdateCell, "u1", 2100, event.UpdateCellParams{Cell: event.Position{Row: 0, Col: 1}, Value: "Z"}),
		gameEvent(t, event.TypeCheck, "u1", 3000, event.CheckParams{Scope: event.Scope{All: true}}),
	}
	st := Replay(events)
	if !st.Grid[0][0].Good || st.Grid[0][0].Bad {
		t.Fatalf("correct cell = %+v, want good", st.Grid[0][0])
	}
	if !st.Grid[0][1].Bad || st.Grid[0][1].Good {
		t.Fatalf("wrong cell = %+v, want bad", st.Grid[0][1])
	}
	// Empty cells stay unmarked.
	if st.Grid[0][2].Good || st.Grid[0][2].Bad {
		t.Fatalf("empty cell = %+v, want unmarked", st.Grid[0][2])
	}
}

func TestUpdateCellAutocheckMarksOnlyThatCell(t *testing.T) {
	events := []event.Event{
		createEvent(t, 1000),
		gameEvent(t, event.TypeUpdateCell, "u1", 2000, event.UpdateCellParams{Cell: event.Position{Row: 0, Col: 1}, Value: "Z"}),
		gameEvent(t, event.TypeUpdateCell, "u1", 3000, event.UpdateCellParams{Cell: event.Position{Row: 0, Col: 0}, Value: "C", Autocheck: true}),
		gameEvent(t, event.TypeUpdateCell, "u1", 4000, event.UpdateCellParams{Cell: event.Position{Row: 0, Col: 2}, Value: "Q", Autocheck: true}),
	}
	st := Replay(events)
	if !st.Grid[0][0].Good || st.Grid[0][0].Bad {
		t.Fatalf("autochecked correct cell = %+v, want good", st.Grid[0][0])
	}
	if !st.Grid[0][2].Bad || st.Grid[0][2].Good {
		t.Fatalf("autochecked wrong cell = %+v, want bad", st.Grid[0][2])
	}
	// The earlier wrong entry at (0,1) had no autocheck and is left alone.
	if st.Grid[0][1].Good || st.Grid[0][1].Bad {
		t.Fatalf("neighboring cell = %+v, want unmarked", st.Grid[0][1])
	}
}

func TestCheckedGoodCellRejectsOverwrite(t *testing.T) {
	events := []event.Event{
		createEvent(t, 1000),
		gameEvent(t, event.TypeUpdateCell, "u1", 2000, event.UpdateCellParams{Cell: event.Position{Row: 0, Col: 0}, Value: "C"}),
		gameEvent(t, event.TypeCheck, "u1", 3000, event.CheckParams{Scope: event.Scope{Cells: []event.Position{{Row: 0, Col: 0}}}}),
		gameEvent(t, event.TypeUpdateCell, "u2", 4000, event.UpdateCellParams{Cell: event.Position{Row: 0, Col: 0}, Value: "Q"}),
	}
	st := Replay(events)
	if got := st.Grid[0][0].Value; got != "C" {
		t.Fatalf("cell value = %q, want confirmed %q kept", got, "C")
	}
}

func TestRevealFillsSolution(t *testing.T) {
	events := []event.Event{
		createEvent(t, 1000),
		gameEvent(t, event.TypeUpdateCell, "u1", 2000, event.UpdateCellParams{Cell: event.Position{Row: 0, Col: 1}, Value: "Z"}),
		gameEvent(t, event.TypeReveal, "u1", 3000, event.RevealParams{Scope: event.Scope{All: true}}),
		gameEvent(t, event.TypeUpdateCell, "u1", 4000, event.UpdateCellParams{Cell: event.Position{Row: 0, Col: 1}, Value: "Q"}),
	}
	st := Replay(events)
	cell := st.Grid[0][1]
	if cell.Value != "A" || !cell.Revealed || !cell.Good || cell.Bad {
		t.Fatalf("revealed cell = %+v, want solution value locked in", cell)
	}
	if st.Grid[1][1].Revealed {
		t.Fatal("black cell should not be revealed")
	}
}

func TestRevealWordUsesCursor(t *testing.T) {
	events := []event.Event{
		createEvent(t, 1000),
		gameEvent(t, event.TypeUpdateCursor, "u1", 1500, event.UpdateCursorParams{ID: "u1", Cell: event.Position{Row: 0, Col: 1}}),
		gameEvent(t, event.TypeReveal, "u1", 2000, event.RevealParams{Scope: event.Scope{Word: true}}),
	}
	st := Replay(events)
	for c := 0; c < 3; c++ {
		if !st.Grid[0][c].Revealed {
			t.Fatalf("cell (0,%d) not revealed, want whole across run", c)
		}
	}
	if st.Grid[1][0].Revealed {
		t.Fatal("cell outside the run should stay hidden")
	}
}

func TestRevealWordWithoutCursorIsNoOp(t *testing.T) {
	events := []event.Event{
		createEvent(t, 1000),
		gameEvent(t, event.TypeReveal, "ghost", 2000, event.RevealParams{Scope: event.Scope{Word: true}}),
	}
	st := Replay(events)
	for r := range st.Grid {
		for c := range st.Grid[r] {
			if st.Grid[r][c].Revealed {
				t.Fatalf("cell (%d,%d) revealed without a cursor", r, c)
			}
		}
	}
}

func TestClockAccumulation(t *testing.T) {
	events := []event.Event{
		createEvent(t, 1000),
		gameEvent(t, event.TypeUpdateClock, "u1", 2000, event.UpdateClockParams{Action: event.ClockStart}),
		gameEvent(t, event.TypeUpdateClock, "u1", 5000, event.UpdateClockParams{Action: event.ClockPause}),
		gameEvent(t, event.TypeMarkSolved, "u1", 6000, nil),
	}
	st := Replay(events)
	// Paused 1000→2000, running 2000→5000, paused 5000→6000.
	if st.Clock.TotalTime != 3000 {
		t.Fatalf("total time = %d, want 3000", st.Clock.TotalTime)
	}
	if st.Clock.TrueTotalTime != 5000 {
		t.Fatalf("true total time = %d, want 5000", st.Clock.TrueTotalTime)
	}
	if !st.Clock.Paused || !st.Solved {
		t.Fatalf("state = paused %t solved %t, want both", st.Clock.Paused, st.Solved)
	}
}

func TestClockReset(t *testing.T) {
	events := []event.Event{
		createEvent(t, 1000),
		gameEvent(t, event.TypeUpdateClock, "u1", 2000, event.UpdateClockParams{Action: event.ClockStart}),
		gameEvent(t, event.TypeUpdateClock, "u1", 4000, event.UpdateClockParams{Action: event.ClockReset}),
	}
	st := Replay(events)
	if st.Clock.TotalTime != 0 || st.Clock.TrueTotalTime != 0 {
		t.Fatalf("clock after reset = %+v, want zeroed accumulators", st.Clock)
	}
	if st.Clock.LastUpdated != 4000 {
		t.Fatalf("last updated = %d, want 4000", st.Clock.LastUpdated)
	}
}

func TestUpdateTeamIDSilentNoOps(t *testing.T) {
	base := []event.Event{
		createEvent(t, 1000),
		gameEvent(t, event.TypeUpdateDisplayName, "u1", 1500, event.UpdateDisplayNameParams{ID: "u1", DisplayName: "Ada"}),
	}

	unknownUser := append(append([]event.Event{}, base...),
		gameEvent(t, event.TypeUpdateTeamID, "u9", 2000, event.UpdateTeamIDParams{ID: "u9", TeamID: 1}))
	st := Replay(unknownUser)
	if _, ok := st.Users["u9"]; ok {
		t.Fatal("unknown user should not be created by updateTeamId")
	}

	unknownTeam := append(append([]event.Event{}, base...),
		gameEvent(t, event.TypeUpdateTeamID, "u1", 2000, event.UpdateTeamIDParams{ID: "u1", TeamID: 7}))
	st = Replay(unknownTeam)
	if got := st.Users["u1"].TeamID; got != 0 {
		t.Fatalf("team id = %d, want untouched", got)
	}

	valid := append(append([]event.Event{}, base...),
		gameEvent(t, event.TypeUpdateTeamID, "u1", 2000, event.UpdateTeamIDParams{ID: "u1", TeamID: 2}))
	st = Replay(valid)
	if got := st.Users["u1"].TeamID; got != 2 {
		t.Fatalf("team id = %d, want 2", got)
	}
}

func TestSolvedByCreditsTeam(t *testing.T) {
	events := []event.Event{
		createEvent(t, 1000),
		gameEvent(t, event.TypeUpdateDisplayName, "u1", 1100, event.UpdateDisplayNameParams{ID: "u1", DisplayName: "Ada"}),
		gameEvent(t, event.TypeUpdateTeamID, "u1", 1200, event.UpdateTeamIDParams{ID: "u1", TeamID: 2}),
		gameEvent(t, event.TypeUpdateCell, "u1", 2000, event.UpdateCellParams{Cell: event.Position{Row: 0, Col: 0}, Value: "C"}),
	}
	st := Replay(events)
	if got := st.Grid[0][0].SolvedBy; got != "Team 2" {
		t.Fatalf("solvedBy = %q, want team credit", got)
	}
}

func TestChatAppendsInOrder(t *testing.T) {
	events := []event.Event{
		createEvent(t, 1000),
		gameEvent(t, event.TypeSendChatMessage, "u1", 2000, event.ChatMessageParams{Text: "first"}),
		gameEvent(t, event.TypeSendChatMessage, "u2", 3000, event.ChatMessageParams{Text: "second"}),
		gameEvent(t, event.TypeChatPing, "u1", 3500, nil),
	}
	st := Replay(events)
	if len(st.Chat) != 2 {
		t.Fatalf("chat length = %d, want 2", len(st.Chat))
	}
	if st.Chat[0].Text != "first" || st.Chat[1].Text != "second" {
		t.Fatalf("chat = %+v, want arrival order", st.Chat)
	}
}
