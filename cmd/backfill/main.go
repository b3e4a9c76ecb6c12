package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	backfillcmd "github.com/crossfold/crossfold/internal/cmd/backfill"
	"github.com/crossfold/crossfold/internal/platform/config"
)

func main() {
	cfg, err := backfillcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[BACKFILL] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := backfillcmd.Run(ctx, cfg); err != nil {
		config.Exitf("backfill failed: %v", err)
	}
}
