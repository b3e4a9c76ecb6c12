// Package server parses relay server flags and starts the runtime.
package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	entrypoint "github.com/crossfold/crossfold/internal/platform/cmd"
	"github.com/crossfold/crossfold/internal/relay"
	"github.com/crossfold/crossfold/internal/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

// Config holds relay server configuration.
type Config struct {
	Port      int    `env:"CROSSFOLD_PORT" envDefault:"8080"`
	Addr      string `env:"CROSSFOLD_ADDR"`
	DBPath    string `env:"CROSSFOLD_DB_PATH" envDefault:"data/crossfold.db"`
	RedisAddr string `env:"CROSSFOLD_REDIS_ADDR"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The relay server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The relay listen address (overrides -port)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Path to the sqlite database")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for cross-instance fan-out (empty disables the bridge)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the relay server and blocks until ctx is canceled.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceServer, func(ctx context.Context) error {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close store: %v", err)
			}
		}()

		var opts []relay.Option
		var bridge *relay.Bridge
		if cfg.RedisAddr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			defer func() {
				if err := rdb.Close(); err != nil {
					log.Printf("close redis: %v", err)
				}
			}()
			bridge = relay.NewBridge(rdb)
			opts = append(opts, relay.WithBridge(bridge))
		}

		srv := relay.New(store, store, opts...)
		if bridge != nil {
			go func() {
				if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("bridge stopped: %v", err)
				}
			}()
		}

		addr := cfg.Addr
		if addr == "" {
			addr = fmt.Sprintf(":%d", cfg.Port)
		}
		httpSrv := &http.Server{
			Addr:    addr,
			Handler: srv.Handler(),
			BaseContext: func(net.Listener) context.Context {
				return ctx
			},
		}

		errCh := make(chan error, 1)
		go func() {
			log.Printf("relay listening addr=%s db=%s bridge=%t", addr, cfg.DBPath, bridge != nil)
			errCh <- httpSrv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		}
	})
}
