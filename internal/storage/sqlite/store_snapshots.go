package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/crossfold/crossfold/internal/storage"
)

// GetSnapshot retrieves the cached snapshot for a game.
func (s *Store) GetSnapshot(ctx context.Context, gid string) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Snapshot{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(gid) == "" {
		return storage.Snapshot{}, fmt.Errorf("gid is required")
	}

	var (
		snap     storage.Snapshot
		retained int
	)
	snap.GID = gid
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT pid, snapshot_json, replay_retained FROM snapshots WHERE gid = ?", gid,
	).Scan(&snap.PID, (*[]byte)(&snap.Snapshot), &retained)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Snapshot{}, storage.ErrNotFound
		}
		return storage.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	snap.ReplayRetained = retained != 0
	return snap, nil
}

// SaveSnapshot upserts the snapshot for a game. ReplayRetained is ORed with
// any previously stored value so a retained log never becomes collectable
// again through a later write.
func (s *Store) SaveSnapshot(ctx context.Context, snap storage.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(snap.GID) == "" {
		return fmt.Errorf("gid is required")
	}
	if len(snap.Snapshot) == 0 {
		return fmt.Errorf("snapshot payload is required")
	}

	retained := 0
	if snap.ReplayRetained {
		retained = 1
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO snapshots (gid, pid, snapshot_json, replay_retained) VALUES (?, ?, ?, ?)
ON CONFLICT(gid) DO UPDATE SET
    pid = excluded.pid,
    snapshot_json = excluded.snapshot_json,
    replay_retained = MAX(snapshots.replay_retained, excluded.replay_retained)`,
		snap.GID, snap.PID, []byte(snap.Snapshot), retained,
	); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// SetReplayRetained flips the replay retention flag and reports whether a
// snapshot row was affected.
func (s *Store) SetReplayRetained(ctx context.Context, gid string, retained bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(gid) == "" {
		return false, fmt.Errorf("gid is required")
	}

	value := 0
	if retained {
		value = 1
	}
	result, err := s.sqlDB.ExecContext(ctx,
		"UPDATE snapshots SET replay_retained = ? WHERE gid = ?", value, gid,
	)
	if err != nil {
		return false, fmt.Errorf("set replay retained: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set replay retained rows affected: %w", err)
	}
	return affected > 0, nil
}
