// Package backfill parses backfill job flags and runs one batch.
package backfill

import (
	"context"
	"flag"
	"fmt"
	"log"

	entrypoint "github.com/crossfold/crossfold/internal/platform/cmd"
	"github.com/crossfold/crossfold/internal/snapshot"
	"github.com/crossfold/crossfold/internal/storage/sqlite"
)

// Config holds backfill job configuration.
type Config struct {
	DBPath    string `env:"CROSSFOLD_DB_PATH" envDefault:"data/crossfold.db"`
	BatchSize int    `env:"CROSSFOLD_BACKFILL_BATCH" envDefault:"100"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Path to the sqlite database")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Max games to snapshot in one run")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes one backfill batch and logs the outcome.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceBackfill, func(ctx context.Context) error {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close store: %v", err)
			}
		}()

		job := snapshot.Backfill{
			Events:    store,
			Snapshots: store,
			BatchSize: cfg.BatchSize,
		}
		report, err := job.Run(ctx)
		if err != nil {
			return fmt.Errorf("backfill run: %w", err)
		}
		log.Printf("backfill done created=%d failed=%d skipped=%d", report.Created, report.Failed, report.Skipped)
		return nil
	})
}
