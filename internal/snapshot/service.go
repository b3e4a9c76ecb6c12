// Package snapshot caches the reducer's output for a game so solved games
// can be served without replaying their full event log, and hosts the
// resumable backfill job that materializes snapshots for historical games.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crossfold/crossfold/internal/game/state"
	"github.com/crossfold/crossfold/internal/storage"
)

// Materialized is the persisted subset of reducer output. Solution and
// clues are reconstructable from the create event, so only the solved
// surface is cached.
type Materialized struct {
	Grid  [][]state.Cell        `json:"grid"`
	Users map[string]state.User `json:"users"`
	Clock state.Clock           `json:"clock"`
	Chat  []state.ChatMessage   `json:"chat"`
}

// Service reads and writes snapshots over the snapshot store. Snapshots
// are created asynchronously and never block the live path.
type Service struct {
	snapshots storage.SnapshotStore
}

// NewService creates a snapshot service.
func NewService(snapshots storage.SnapshotStore) *Service {
	return &Service{snapshots: snapshots}
}

// Get returns the materialized snapshot for a game, or
// storage.ErrNotFound when none exists.
func (s *Service) Get(ctx context.Context, gid string) (Materialized, error) {
	if s == nil || s.snapshots == nil {
		return Materialized{}, fmt.Errorf("snapshot store is not configured")
	}
	snap, err := s.snapshots.GetSnapshot(ctx, gid)
	if err != nil {
		return Materialized{}, err
	}
	var m Materialized
	if err := json.Unmarshal(snap.Snapshot, &m); err != nil {
		return Materialized{}, fmt.Errorf("decode snapshot gid=%s: %w", gid, err)
	}
	return m, nil
}

// Save upserts the snapshot for a game. Passing replayRetained only ever
// raises the flag; the store ORs it with any prior value.
func (s *Service) Save(ctx context.Context, gid, pid string, m Materialized, replayRetained bool) error {
	if s == nil || s.snapshots == nil {
		return fmt.Errorf("snapshot store is not configured")
	}
	if strings.TrimSpace(gid) == "" {
		return fmt.Errorf("gid is required")
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal snapshot gid=%s: %w", gid, err)
	}
	return s.snapshots.SaveSnapshot(ctx, storage.Snapshot{
		GID:            gid,
		PID:            pid,
		Snapshot:       payload,
		ReplayRetained: replayRetained,
	})
}

// SetReplayRetained flips replay retention for a game and reports whether
// a snapshot row was affected.
func (s *Service) SetReplayRetained(ctx context.Context, gid string, retained bool) (bool, error) {
	if s == nil || s.snapshots == nil {
		return false, fmt.Errorf("snapshot store is not configured")
	}
	return s.snapshots.SetReplayRetained(ctx, gid, retained)
}

// Materialize folds a full game state down to its snapshot subset.
func Materialize(st *state.GameState) (Materialized, error) {
	if st == nil || len(st.Grid) == 0 {
		return Materialized{}, fmt.Errorf("replay produced no grid")
	}
	return Materialized{
		Grid:  st.Grid,
		Users: st.Users,
		Clock: st.Clock,
		Chat:  st.Chat,
	}, nil
}
