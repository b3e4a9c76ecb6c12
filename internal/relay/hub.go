package relay

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// sendBuffer bounds the per-connection outbound queue. A connection that
// cannot drain this many frames is dropped rather than allowed to stall
// the room.
const sendBuffer = 256

// conn wraps one websocket connection with a buffered write pump so room
// broadcasts never block on a slow peer.
type conn struct {
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{ws: ws, send: make(chan []byte, sendBuffer)}
}

// writePump drains the send queue onto the socket. It exits when the queue
// closes or a write fails.
func (c *conn) writePump() {
	for payload := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("relay write failed remote=%s: %v", c.ws.RemoteAddr(), err)
			return
		}
	}
}

// enqueue queues a frame for delivery. It reports false when the buffer is
// full, which the hub treats as a dead connection.
func (c *conn) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		_ = c.ws.Close()
	})
}

// Hub tracks room membership and fans frames out to members. One Hub
// instance exists per process and is injected into connection handlers.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*conn]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*conn]struct{})}
}

// Join adds the connection to a room. Joining twice is a no-op.
func (h *Hub) Join(key string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[key]
	if !ok {
		members = make(map[*conn]struct{})
		h.rooms[key] = members
	}
	members[c] = struct{}{}
}

// Leave removes the connection from a room. Leaving a room the connection
// never joined is a no-op.
func (h *Hub) Leave(key string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(key, c)
}

// LeaveAll removes the connection from every room; used at disconnect.
func (h *Hub) LeaveAll(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key := range h.rooms {
		h.leaveLocked(key, c)
	}
}

func (h *Hub) leaveLocked(key string, c *conn) {
	members, ok := h.rooms[key]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, key)
	}
}

// Broadcast delivers a frame to every member of a room, including the
// member that triggered it. Members that cannot keep up are dropped.
func (h *Hub) Broadcast(key string, payload []byte) {
	h.mu.Lock()
	var stale []*conn
	for member := range h.rooms[key] {
		if !member.enqueue(payload) {
			stale = append(stale, member)
		}
	}
	for _, member := range stale {
		for roomKey := range h.rooms {
			h.leaveLocked(roomKey, member)
		}
	}
	h.mu.Unlock()

	for _, member := range stale {
		log.Printf("relay dropped slow consumer room=%s remote=%s", key, member.ws.RemoteAddr())
		member.close()
	}
}

// MemberCount reports how many connections are in a room.
func (h *Hub) MemberCount(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[key])
}
