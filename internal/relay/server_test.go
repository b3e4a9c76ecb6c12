package relay

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crossfold/crossfold/internal/game/event"
	"github.com/crossfold/crossfold/internal/room"
	"github.com/crossfold/crossfold/internal/storage/sqlite"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fixed := time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)
	srv := New(store, store, WithClock(func() time.Time { return fixed }))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dialRelay(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendRequest(t *testing.T, ws *websocket.Conn, id, action string, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", action, err)
	}
	frame, err := json.Marshal(Request{ID: id, Action: action, Data: data})
	if err != nil {
		t.Fatalf("marshal %s request: %v", action, err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write %s: %v", action, err)
	}
}

// awaitAck reads frames until the ack for id arrives, discarding pushes.
func awaitAck(t *testing.T, ws *websocket.Conn, id string) Message {
	t.Helper()

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read ack %s: %v", id, err)
		}
		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("decode ack: %v", err)
		}
		if msg.ID == id {
			return msg
		}
	}
}

// awaitPush reads frames until a push with the given action arrives.
func awaitPush(t *testing.T, ws *websocket.Conn, action string) Message {
	t.Helper()

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read push %s: %v", action, err)
		}
		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("decode push: %v", err)
		}
		if msg.ID == "" && msg.Action == action {
			return msg
		}
	}
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz = %d %q, want 200 ok", resp.StatusCode, body)
	}
}

func TestGameEventPersistAndBroadcast(t *testing.T) {
	_, ts := newTestServer(t)
	sender := dialRelay(t, ts)
	peer := dialRelay(t, ts)

	sendRequest(t, sender, "j1", ActionJoinGame, GameRef{GID: "g1"})
	if ack := awaitAck(t, sender, "j1"); ack.Error != nil {
		t.Fatalf("join ack error: %v", ack.Error)
	}
	sendRequest(t, peer, "j2", ActionJoinGame, GameRef{GID: "g1"})
	if ack := awaitAck(t, peer, "j2"); ack.Error != nil {
		t.Fatalf("peer join ack error: %v", ack.Error)
	}

	evt := event.Event{
		Type:      event.TypeStartGame,
		User:      "u1",
		Timestamp: 1700000000000,
	}
	sendRequest(t, sender, "e1", ActionGameEvent, GameEventPayload{GID: "g1", Event: evt})

	// The peer sees the broadcast; the sender gets both its ack and the
	// echo of its own event.
	push := awaitPush(t, peer, PushGameEvent)
	var payload GameEventPayload
	if err := json.Unmarshal(push.Data, &payload); err != nil {
		t.Fatalf("decode push payload: %v", err)
	}
	if payload.GID != "g1" || payload.Event.Type != event.TypeStartGame {
		t.Fatalf("push = %+v, want startGame for g1", payload)
	}

	ack := awaitAck(t, sender, "e1")
	if ack.Error != nil {
		t.Fatalf("event ack error: %v", ack.Error)
	}
	var persisted event.Event
	if err := json.Unmarshal(ack.Data, &persisted); err != nil {
		t.Fatalf("decode persisted event: %v", err)
	}
	if persisted.Timestamp != 1700000000000 {
		t.Fatalf("timestamp = %d, want client timestamp kept", persisted.Timestamp)
	}
}

func TestGameEventServerTimeResolution(t *testing.T) {
	_, ts := newTestServer(t)
	ws := dialRelay(t, ts)

	sendRequest(t, ws, "j1", ActionJoinGame, GameRef{GID: "g1"})
	awaitAck(t, ws, "j1")

	evt := event.Event{Type: event.TypeStartGame, User: "u1", UseServerTime: true}
	sendRequest(t, ws, "e1", ActionGameEvent, GameEventPayload{GID: "g1", Event: evt})

	ack := awaitAck(t, ws, "e1")
	if ack.Error != nil {
		t.Fatalf("event ack error: %v", ack.Error)
	}
	var persisted event.Event
	if err := json.Unmarshal(ack.Data, &persisted); err != nil {
		t.Fatalf("decode persisted event: %v", err)
	}
	want := time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC).UnixMilli()
	if persisted.Timestamp != want {
		t.Fatalf("timestamp = %d, want relay clock %d", persisted.Timestamp, want)
	}
	if persisted.UseServerTime {
		t.Fatal("useServerTime should be cleared after resolution")
	}
}

func TestInvalidGameEventRejected(t *testing.T) {
	_, ts := newTestServer(t)
	ws := dialRelay(t, ts)

	evt := event.Event{
		Type:      event.TypeUpdateCell,
		User:      "u1",
		Timestamp: 1,
		Params:    json.RawMessage(`{"cell":{"r":0,"c":0},"value":"A","bogus":1}`),
	}
	sendRequest(t, ws, "e1", ActionGameEvent, GameEventPayload{GID: "g1", Event: evt})

	ack := awaitAck(t, ws, "e1")
	if ack.Error == nil || ack.Error.Code != CodeInvalid {
		t.Fatalf("ack error = %v, want %s", ack.Error, CodeInvalid)
	}

	// Nothing was persisted: fail closed.
	sendRequest(t, ws, "s1", ActionSyncAllGameEvents, GameRef{GID: "g1"})
	sync := awaitAck(t, ws, "s1")
	var events []event.Event
	if err := json.Unmarshal(sync.Data, &events); err != nil {
		t.Fatalf("decode sync: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %+v, want empty log", events)
	}
}

func TestSyncReturnsFullOrderedHistory(t *testing.T) {
	_, ts := newTestServer(t)
	ws := dialRelay(t, ts)

	for i, typ := range []event.Type{event.TypeStartGame, event.TypeChatPing, event.TypeMarkSolved} {
		evt := event.Event{Type: typ, User: "u1", Timestamp: int64(1000 * (i + 1))}
		sendRequest(t, ws, "e", ActionGameEvent, GameEventPayload{GID: "g1", Event: evt})
		awaitAck(t, ws, "e")
	}

	sendRequest(t, ws, "s1", ActionSyncAllGameEvents, GameRef{GID: "g1"})
	ack := awaitAck(t, ws, "s1")
	var events []event.Event
	if err := json.Unmarshal(ack.Data, &events); err != nil {
		t.Fatalf("decode sync: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len = %d, want 3", len(events))
	}
	if events[0].Type != event.TypeStartGame || events[2].Type != event.TypeMarkSolved {
		t.Fatalf("order = %v, want ascending by timestamp", events)
	}
}

func TestRoomEventFlow(t *testing.T) {
	_, ts := newTestServer(t)
	ws := dialRelay(t, ts)

	sendRequest(t, ws, "j1", ActionJoinRoom, RoomRef{RID: "r1"})
	if ack := awaitAck(t, ws, "j1"); ack.Error != nil {
		t.Fatalf("join room ack error: %v", ack.Error)
	}

	evt := room.Event{
		Type:      room.TypeSetGame,
		UID:       "u1",
		Timestamp: 1000,
		Params:    json.RawMessage(`{"gid":"g1"}`),
	}
	sendRequest(t, ws, "e1", ActionRoomEvent, RoomEventPayload{RID: "r1", Event: evt})
	if ack := awaitAck(t, ws, "e1"); ack.Error != nil {
		t.Fatalf("room event ack error: %v", ack.Error)
	}

	sendRequest(t, ws, "s1", ActionSyncAllRoomEvents, RoomRef{RID: "r1"})
	ack := awaitAck(t, ws, "s1")
	var events []room.Event
	if err := json.Unmarshal(ack.Data, &events); err != nil {
		t.Fatalf("decode room sync: %v", err)
	}
	if len(events) != 1 || events[0].Type != room.TypeSetGame {
		t.Fatalf("events = %+v, want single SET_GAME", events)
	}
}

func TestRoomEventUIDMismatchRejected(t *testing.T) {
	_, ts := newTestServer(t)
	ws := dialRelay(t, ts)

	evt := room.Event{
		Type:      room.TypeUserPing,
		UID:       "u1",
		Timestamp: 1000,
		Params:    json.RawMessage(`{"uid":"u2"}`),
	}
	sendRequest(t, ws, "e1", ActionRoomEvent, RoomEventPayload{RID: "r1", Event: evt})
	ack := awaitAck(t, ws, "e1")
	if ack.Error == nil || ack.Error.Code != CodeInvalid {
		t.Fatalf("ack error = %v, want %s", ack.Error, CodeInvalid)
	}
}

func TestLatencyPing(t *testing.T) {
	_, ts := newTestServer(t)
	ws := dialRelay(t, ts)

	sendRequest(t, ws, "p1", ActionLatencyPing, LatencyPing{Timestamp: 12345})
	ack := awaitAck(t, ws, "p1")
	if ack.Action != PushLatencyPong {
		t.Fatalf("action = %q, want %s", ack.Action, PushLatencyPong)
	}
	var pong LatencyPong
	if err := json.Unmarshal(ack.Data, &pong); err != nil {
		t.Fatalf("decode pong: %v", err)
	}
	if pong.ClientTimestamp != 12345 {
		t.Fatalf("client timestamp = %d, want echo", pong.ClientTimestamp)
	}
	want := time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC).UnixMilli()
	if pong.ServerTimestamp != want {
		t.Fatalf("server timestamp = %d, want pinned clock %d", pong.ServerTimestamp, want)
	}
}

func TestUnknownActionRejected(t *testing.T) {
	_, ts := newTestServer(t)
	ws := dialRelay(t, ts)

	sendRequest(t, ws, "x1", "teleport", struct{}{})
	ack := awaitAck(t, ws, "x1")
	if ack.Error == nil || ack.Error.Code != CodeBadRequest {
		t.Fatalf("ack error = %v, want %s", ack.Error, CodeBadRequest)
	}
}

func TestJoinRequiresID(t *testing.T) {
	_, ts := newTestServer(t)
	ws := dialRelay(t, ts)

	sendRequest(t, ws, "j1", ActionJoinGame, GameRef{})
	ack := awaitAck(t, ws, "j1")
	if ack.Error == nil || ack.Error.Code != CodeBadRequest {
		t.Fatalf("ack error = %v, want %s", ack.Error, CodeBadRequest)
	}
}
