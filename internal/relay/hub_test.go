package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialPair returns the server side of a live websocket connection plus the
// client side, so hub tests exercise real write pumps.
func dialPair(t *testing.T) (*conn, *websocket.Conn) {
	t.Helper()

	serverConns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverConns <- ws
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientWS, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { clientWS.Close() })

	serverWS := <-serverConns
	c := newConn(serverWS)
	go c.writePump()
	t.Cleanup(c.close)
	return c, clientWS
}

func TestHubJoinBroadcastLeave(t *testing.T) {
	hub := NewHub()
	c1, client1 := dialPair(t)
	c2, client2 := dialPair(t)

	hub.Join("game:g1", c1)
	hub.Join("game:g1", c1) // idempotent
	hub.Join("game:g1", c2)
	if got := hub.MemberCount("game:g1"); got != 2 {
		t.Fatalf("member count = %d, want 2", got)
	}

	hub.Broadcast("game:g1", []byte(`{"hello":true}`))
	for _, client := range []*websocket.Conn{client1, client2} {
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("read broadcast: %v", err)
		}
		if string(payload) != `{"hello":true}` {
			t.Fatalf("payload = %s, want broadcast frame", payload)
		}
	}

	hub.Leave("game:g1", c2)
	if got := hub.MemberCount("game:g1"); got != 1 {
		t.Fatalf("member count after leave = %d, want 1", got)
	}

	hub.Broadcast("game:g1", []byte(`again`))
	client1.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := client1.ReadMessage(); err != nil {
		t.Fatalf("read second broadcast: %v", err)
	}
}

func TestHubLeaveAll(t *testing.T) {
	hub := NewHub()
	c, _ := dialPair(t)

	hub.Join("game:g1", c)
	hub.Join("room:r1", c)
	hub.LeaveAll(c)
	if hub.MemberCount("game:g1") != 0 || hub.MemberCount("room:r1") != 0 {
		t.Fatal("expected connection removed from every room")
	}
}

func TestHubLeaveUnknownRoomIsNoOp(t *testing.T) {
	hub := NewHub()
	c, _ := dialPair(t)
	hub.Leave("game:ghost", c)
	if got := hub.MemberCount("game:ghost"); got != 0 {
		t.Fatalf("member count = %d, want 0", got)
	}
}

func TestHubDropsSlowConsumer(t *testing.T) {
	hub := NewHub()
	c, _ := dialPair(t)

	// Saturate the queue without a pump draining it.
	blocked := newConn(c.ws)
	hub.Join("game:g1", blocked)
	for i := 0; i < sendBuffer; i++ {
		if !blocked.enqueue([]byte("fill")) {
			t.Fatalf("enqueue %d failed before buffer was full", i)
		}
	}

	hub.Broadcast("game:g1", []byte("overflow"))
	if got := hub.MemberCount("game:g1"); got != 0 {
		t.Fatalf("member count = %d, want slow consumer dropped", got)
	}
}
