package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/crossfold/crossfold/internal/game/event"
	"github.com/crossfold/crossfold/internal/storage"
)

// The puzzles table is the narrow surface of the puzzle collaborator.
// Parsing, format conversion, and CRUD happen elsewhere; crossfold only
// reads finished content, plus PutPuzzle so tests and seeders can load
// fixtures.

// GetPuzzleContent returns the full puzzle content for a puzzle id.
func (s *Store) GetPuzzleContent(ctx context.Context, pid string) (event.PuzzleContent, error) {
	if err := ctx.Err(); err != nil {
		return event.PuzzleContent{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.PuzzleContent{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(pid) == "" {
		return event.PuzzleContent{}, fmt.Errorf("pid is required")
	}

	var raw []byte
	err := s.sqlDB.QueryRowContext(ctx, "SELECT content_json FROM puzzles WHERE pid = ?", pid).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.PuzzleContent{}, storage.ErrNotFound
		}
		return event.PuzzleContent{}, fmt.Errorf("get puzzle content: %w", err)
	}

	var content event.PuzzleContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return event.PuzzleContent{}, fmt.Errorf("decode puzzle content pid=%s: %w", pid, err)
	}
	return content, nil
}

// GetPuzzleInfo returns puzzle metadata without loading the grids.
func (s *Store) GetPuzzleInfo(ctx context.Context, pid string) (event.PuzzleInfo, error) {
	if err := ctx.Err(); err != nil {
		return event.PuzzleInfo{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.PuzzleInfo{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(pid) == "" {
		return event.PuzzleInfo{}, fmt.Errorf("pid is required")
	}

	var raw []byte
	err := s.sqlDB.QueryRowContext(ctx, "SELECT info_json FROM puzzles WHERE pid = ?", pid).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.PuzzleInfo{}, storage.ErrNotFound
		}
		return event.PuzzleInfo{}, fmt.Errorf("get puzzle info: %w", err)
	}

	var info event.PuzzleInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return event.PuzzleInfo{}, fmt.Errorf("decode puzzle info pid=%s: %w", pid, err)
	}
	return info, nil
}

// PutPuzzle stores puzzle content and its metadata.
func (s *Store) PutPuzzle(ctx context.Context, pid string, content event.PuzzleContent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(pid) == "" {
		return fmt.Errorf("pid is required")
	}

	contentJSON, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("marshal puzzle content: %w", err)
	}
	infoJSON, err := json.Marshal(content.Info)
	if err != nil {
		return fmt.Errorf("marshal puzzle info: %w", err)
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO puzzles (pid, content_json, info_json) VALUES (?, ?, ?)
ON CONFLICT(pid) DO UPDATE SET content_json = excluded.content_json, info_json = excluded.info_json`,
		pid, contentJSON, infoJSON,
	); err != nil {
		return fmt.Errorf("put puzzle: %w", err)
	}
	return nil
}

// puzzleContentTx reads puzzle content inside an open transaction so
// CreateInitialEvent sees a consistent puzzle row.
func puzzleContentTx(ctx context.Context, tx *sql.Tx, pid string) (event.PuzzleContent, error) {
	var raw []byte
	err := tx.QueryRowContext(ctx, "SELECT content_json FROM puzzles WHERE pid = ?", pid).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.PuzzleContent{}, fmt.Errorf("puzzle %s: %w", pid, storage.ErrNotFound)
		}
		return event.PuzzleContent{}, fmt.Errorf("get puzzle content: %w", err)
	}

	var content event.PuzzleContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return event.PuzzleContent{}, fmt.Errorf("decode puzzle content pid=%s: %w", pid, err)
	}
	return content, nil
}
