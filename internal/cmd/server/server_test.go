package server

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Port)
	}
	if cfg.DBPath != "data/crossfold.db" {
		t.Fatalf("db path = %q, want default", cfg.DBPath)
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("redis addr = %q, want empty", cfg.RedisAddr)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-port", "9001", "-addr", "127.0.0.1:9999", "-redis-addr", "localhost:6379"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9001 {
		t.Fatalf("port = %d, want 9001", cfg.Port)
	}
	if cfg.Addr != "127.0.0.1:9999" {
		t.Fatalf("addr = %q, want override", cfg.Addr)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("redis addr = %q, want override", cfg.RedisAddr)
	}
}
