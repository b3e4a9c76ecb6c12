// Package storage declares the persistence interfaces consumed by the
// relay, snapshot service, and backfill job, plus the narrow collaborator
// interface for puzzle content.
package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/crossfold/crossfold/internal/game/event"
	"github.com/crossfold/crossfold/internal/room"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// EventQuery bounds a log read. Zero Limit means no limit.
type EventQuery struct {
	Limit  int
	Offset int
}

// EventPage is one page of a game's log plus the total log length.
type EventPage struct {
	Events []event.Event
	Total  int
}

// RoomEventPage is one page of a room's log plus the total log length.
type RoomEventPage struct {
	Events []room.Event
	Total  int
}

// GameEventStore persists the append-only, per-game ordered event log.
// Events reaching AddEvent have already passed validation; the store never
// holds malformed events.
type GameEventStore interface {
	// GetEvents returns events ordered ascending by timestamp, ties broken
	// by insertion order.
	GetEvents(ctx context.Context, gid string, q EventQuery) (EventPage, error)
	// AddEvent appends a single event.
	AddEvent(ctx context.Context, gid string, evt event.Event) error
	// CreateInitialEvent fetches the puzzle and persists the create event
	// in one transaction, returning the game id. An empty gid asks the
	// store to mint one.
	CreateInitialEvent(ctx context.Context, gid, pid, userID string) (string, error)
	// BackfillCandidates lists up to limit game ids that are marked solved,
	// have a create event, and lack a snapshot.
	BackfillCandidates(ctx context.Context, limit int) ([]string, error)
}

// RoomEventStore persists the parallel, lighter-weight room log. It mirrors
// the GetEvents/AddEvent shape of the game log over a separate table.
type RoomEventStore interface {
	GetRoomEvents(ctx context.Context, rid string, q EventQuery) (RoomEventPage, error)
	AddRoomEvent(ctx context.Context, rid string, evt room.Event) error
}

// Snapshot is a cached materialization of the reducer output for one game.
// ReplayRetained flags that the raw log must be kept for replay/scrub even
// though a snapshot exists.
type Snapshot struct {
	GID            string
	PID            string
	Snapshot       json.RawMessage
	ReplayRetained bool
}

// SnapshotStore caches reducer output keyed one-to-one with a game id.
type SnapshotStore interface {
	// GetSnapshot returns ErrNotFound when the game has no snapshot.
	GetSnapshot(ctx context.Context, gid string) (Snapshot, error)
	// SaveSnapshot upserts; ReplayRetained is ORed across writes, so once
	// retained a snapshot stays retained.
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	// SetReplayRetained reports whether a row was affected.
	SetReplayRetained(ctx context.Context, gid string, retained bool) (bool, error)
}

// PuzzleSource is the puzzle collaborator. Puzzle storage, format
// conversion, and CRUD live outside this system; only these reads are
// consumed.
type PuzzleSource interface {
	GetPuzzleContent(ctx context.Context, pid string) (event.PuzzleContent, error)
	GetPuzzleInfo(ctx context.Context, pid string) (event.PuzzleInfo, error)
}
