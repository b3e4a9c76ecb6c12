package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Bridge fans broadcasts out across relay instances through Redis pub/sub.
// Each persisted event is published on a channel named after its room key;
// peer instances rebroadcast it to their local hubs. Remote frames are
// never re-persisted, the originating instance already appended them.
type Bridge struct {
	rdb      *redis.Client
	hub      *Hub
	instance string
}

// bridgeFrame wraps a broadcast frame with its origin so instances can
// ignore their own publications.
type bridgeFrame struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

// NewBridge creates a bridge over an established Redis client. The hub is
// attached when the bridge is handed to New.
func NewBridge(rdb *redis.Client) *Bridge {
	return &Bridge{
		rdb:      rdb,
		instance: uuid.NewString(),
	}
}

// Publish sends a broadcast frame to peer instances. Publish failures are
// logged and swallowed; local delivery has already happened and the local
// room must not observe a bridge outage.
func (b *Bridge) Publish(ctx context.Context, room string, frame []byte) {
	payload, err := json.Marshal(bridgeFrame{Origin: b.instance, Frame: frame})
	if err != nil {
		log.Printf("marshal bridge frame room=%s: %v", room, err)
		return
	}
	if err := b.rdb.Publish(ctx, room, payload).Err(); err != nil {
		log.Printf("publish bridge frame room=%s: %v", room, err)
	}
}

// Run subscribes to all game and room channels and rebroadcasts remote
// frames to the local hub. It blocks until the context is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	pubsub := b.rdb.PSubscribe(ctx, "game:*", "room:*")
	defer func() {
		if err := pubsub.Close(); err != nil {
			log.Printf("close bridge subscription: %v", err)
		}
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("bridge subscription closed")
			}
			var bf bridgeFrame
			if err := json.Unmarshal([]byte(msg.Payload), &bf); err != nil {
				log.Printf("decode bridge frame channel=%s: %v", msg.Channel, err)
				continue
			}
			if bf.Origin == b.instance {
				continue
			}
			b.hub.Broadcast(msg.Channel, bf.Frame)
		}
	}
}
