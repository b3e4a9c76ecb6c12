package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/crossfold/crossfold/internal/room"
	"github.com/crossfold/crossfold/internal/storage"
)

// Room events share the game log's store shape over a separate table.

// GetRoomEvents returns a room's events ordered ascending by timestamp plus
// the total log length.
func (s *Store) GetRoomEvents(ctx context.Context, rid string, q storage.EventQuery) (storage.RoomEventPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.RoomEventPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.RoomEventPage{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(rid) == "" {
		return storage.RoomEventPage{}, fmt.Errorf("rid is required")
	}

	query := "SELECT ts, uid, event_type, payload_json FROM room_events WHERE rid = ? ORDER BY ts ASC, id ASC"
	args := []any{rid}
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
		return storage.RoomEventPage{}, fmt.Errorf("query room events: %w", err)
	}
	defer rows.Close()

	var events []room.Event
	for rows.Next() {
		var (
			ts        int64
			uid       string
			eventType string
			payload   []byte
		)
		if err := rows.Scan(&ts, &uid, &eventType, &payload); err != nil {
			return storage.RoomEventPage{}, fmt.Errorf("scan room event: %w", err)
		}
		events = append(events, room.Event{
			Type:      room.Type(eventType),
			UID:       uid,
			Timestamp: ts,
			Params:    json.RawMessage(payload),
		})
	}
	if err := rows.Err(); err != nil {
		return storage.RoomEventPage{}, fmt.Errorf("iterate room events: %w", err)
	}

	var total int
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM room_events WHERE rid = ?", rid).Scan(&total); err != nil {
		return storage.RoomEventPage{}, fmt.Errorf("count room events: %w", err)
	}

	return storage.RoomEventPage{Events: events, Total: total}, nil
}

// AddRoomEvent appends a single event to a room's log.
func (s *Store) AddRoomEvent(ctx context.Context, rid string, evt room.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(rid) == "" {
		return fmt.Errorf("rid is required")
	}

	if evt.Timestamp <= 0 {
		now := s.now().UnixMilli()
		log.Printf("coerced invalid room event timestamp rid=%s event_type=%s ts=%d now=%d", rid, evt.Type, evt.Timestamp, now)
		evt.Timestamp = now
	}

	if _, err := s.sqlDB.ExecContext(ctx,
		"INSERT INTO room_events (rid, ts, uid, event_type, payload_json) VALUES (?, ?, ?, ?, ?)",
		rid, evt.Timestamp, evt.UID, string(evt.Type), []byte(evt.Params),
	); err != nil {
		return fmt.Errorf("append room event: %w", err)
	}
	return nil
}
