package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/crossfold/crossfold/internal/game/event"
	"github.com/crossfold/crossfold/internal/storage"
)

// GetEvents returns a game's events ordered ascending by timestamp (ties
// broken by insertion order) plus the total log length.
func (s *Store) GetEvents(ctx context.Context, gid string, q storage.EventQuery) (storage.EventPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.EventPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.EventPage{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(gid) == "" {
		return storage.EventPage{}, fmt.Errorf("gid is required")
	}

	query := "SELECT ts, uid, event_type, payload_json FROM game_events WHERE gid = ? ORDER BY ts ASC, id ASC"
	args := []any{gid}
	if q.Limit > 0 || q.Offset > 0 {
		limit := q.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, q.Offset)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.EventPage{}, fmt.Errorf("query game events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			ts        int64
			uid       string
			eventType string
			payload   []byte
		)
		if err := rows.Scan(&ts, &uid, &eventType, &payload); err != nil {
			return storage.EventPage{}, fmt.Errorf("scan game event: %w", err)
		}
		events = append(events, event.Event{
			Type:      event.Type(eventType),
			User:      uid,
			Timestamp: ts,
			Params:    json.RawMessage(payload),
		})
	}
	if err := rows.Err(); err != nil {
		return storage.EventPage{}, fmt.Errorf("iterate game events: %w", err)
	}

	var total int
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM game_events WHERE gid = ?", gid).Scan(&total); err != nil {
		return storage.EventPage{}, fmt.Errorf("count game events: %w", err)
	}

	return storage.EventPage{Events: events, Total: total}, nil
}

// AddEvent appends a single event to a game's log. Callers are expected to
// have validated the event already; AddEvent only defends the timestamp.
func (s *Store) AddEvent(ctx context.Context, gid string, evt event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(gid) == "" {
		return fmt.Errorf("gid is required")
	}

	ctx, span := s.tracer.Start(ctx, "store.AddEvent")
	span.SetAttributes(
		attribute.String("gid", gid),
		attribute.String("event_type", string(evt.Type)),
	)
	defer span.End()

	evt.Timestamp = s.coerceTimestamp(gid, evt)

	if _, err := s.sqlDB.ExecContext(ctx,
		"INSERT INTO game_events (gid, ts, uid, event_type, payload_json) VALUES (?, ?, ?, ?, ?)",
		gid, evt.Timestamp, evt.User, string(evt.Type), []byte(evt.Params),
	); err != nil {
		return fmt.Errorf("append game event: %w", err)
	}
	return nil
}

// CreateInitialEvent loads the puzzle and persists the create event inside
// one transaction so the initial event is all-or-nothing. An empty gid asks
// the store to mint one. Returns the game id.
func (s *Store) CreateInitialEvent(ctx context.Context, gid, pid, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(pid) == "" {
		return "", fmt.Errorf("pid is required")
	}
	if strings.TrimSpace(gid) == "" {
		gid = uuid.NewString()
	}

	ctx, span := s.tracer.Start(ctx, "store.CreateInitialEvent")
	span.SetAttributes(attribute.String("gid", gid), attribute.String("pid", pid))
	defer span.End()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	content, err := puzzleContentTx(ctx, tx, pid)
	if err != nil {
		return "", err
	}

	params, err := json.Marshal(event.CreateParams{PID: pid, Game: content})
	if err != nil {
		return "", fmt.Errorf("marshal create params: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO game_events (gid, ts, uid, event_type, payload_json) VALUES (?, ?, ?, ?, ?)",
		gid, s.now().UnixMilli(), userID, string(event.TypeCreate), params,
	); err != nil {
		return "", fmt.Errorf("append create event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return gid, nil
}

// BackfillCandidates lists game ids that are marked solved, possess a
// create event, and lack a snapshot.
func (s *Store) BackfillCandidates(ctx context.Context, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT DISTINCT gid FROM game_events solved
WHERE solved.event_type = ?
  AND EXISTS (SELECT 1 FROM game_events created WHERE created.gid = solved.gid AND created.event_type = ?)
  AND NOT EXISTS (SELECT 1 FROM snapshots WHERE snapshots.gid = solved.gid)
ORDER BY gid
LIMIT ?`,
		string(event.TypeMarkSolved), string(event.TypeCreate), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query backfill candidates: %w", err)
	}
	defer rows.Close()

	var gids []string
	for rows.Next() {
		var gid string
		if err := rows.Scan(&gid); err != nil {
			return nil, fmt.Errorf("scan backfill candidate: %w", err)
		}
		gids = append(gids, gid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backfill candidates: %w", err)
	}
	return gids, nil
}

// coerceTimestamp replaces a missing or malformed timestamp with now. This
// is a deliberate leniency: clock skew or a bad client payload must never
// block the user.
func (s *Store) coerceTimestamp(gid string, evt event.Event) int64 {
	if evt.Timestamp > 0 {
		return evt.Timestamp
	}
	now := s.now().UnixMilli()
	log.Printf("coerced invalid event timestamp gid=%s event_type=%s ts=%d now=%d", gid, evt.Type, evt.Timestamp, now)
	return now
}
