package client

import "time"

// Config controls how the SDK connects to a relay.
type Config struct {
	URL              string // websocket endpoint, e.g. ws://host:8080/ws
	HandshakeTimeout time.Duration
	AckTimeout       time.Duration // max wait for a server ack, 0 disables
	WriteTimeout     time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		AckTimeout:       15 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}
