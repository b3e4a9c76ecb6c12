package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/crossfold/crossfold/internal/game/event"
	"github.com/crossfold/crossfold/internal/game/state"
	"github.com/crossfold/crossfold/internal/storage"
)

const defaultBatchSize = 100

// Backfill materializes snapshots for completed games that predate the
// snapshot cache. Each run processes a bounded batch; the job is safely
// re-runnable and makes forward progress until the backlog drains.
type Backfill struct {
	Events    storage.GameEventStore
	Snapshots storage.SnapshotStore

	// BatchSize bounds how many games one run touches. Zero means the
	// default.
	BatchSize int
}

// Report summarizes one backfill run.
type Report struct {
	Created int
	Failed  int
	Skipped int
}

// Run processes one batch of backfill candidates. A game whose replay
// yields no grid is logged and counted as failed, not retried within the
// run; a candidate whose log disappeared is skipped.
func (b *Backfill) Run(ctx context.Context) (Report, error) {
	if b == nil || b.Events == nil || b.Snapshots == nil {
		return Report{}, fmt.Errorf("backfill stores are not configured")
	}

	batch := b.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	candidates, err := b.Events.BackfillCandidates(ctx, batch)
	if err != nil {
		return Report{}, fmt.Errorf("list backfill candidates: %w", err)
	}

	var report Report
	for _, gid := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		page, err := b.Events.GetEvents(ctx, gid, storage.EventQuery{})
		if err != nil {
			log.Printf("backfill load events failed gid=%s: %v", gid, err)
			report.Failed++
			continue
		}
		if len(page.Events) == 0 {
			report.Skipped++
			continue
		}

		st := state.Replay(page.Events)
		m, err := Materialize(st)
		if err != nil {
			log.Printf("backfill replay failed gid=%s: %v", gid, err)
			report.Failed++
			continue
		}

		payload, err := json.Marshal(m)
		if err != nil {
			log.Printf("backfill marshal failed gid=%s: %v", gid, err)
			report.Failed++
			continue
		}

		if err := b.Snapshots.SaveSnapshot(ctx, storage.Snapshot{
			GID:      gid,
			PID:      createPID(page.Events),
			Snapshot: payload,
		}); err != nil {
			log.Printf("backfill save failed gid=%s: %v", gid, err)
			report.Failed++
			continue
		}
		report.Created++
	}

	log.Printf("backfill run complete created=%d failed=%d skipped=%d", report.Created, report.Failed, report.Skipped)
	return report, nil
}

// createPID digs the puzzle id out of the game's create event.
func createPID(events []event.Event) string {
	for _, evt := range events {
		if evt.Type != event.TypeCreate {
			continue
		}
		var p event.CreateParams
		if err := json.Unmarshal(evt.Params, &p); err != nil {
			return ""
		}
		return p.PID
	}
	return ""
}
