package relay

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/crossfold/crossfold/internal/game/event"
	"github.com/crossfold/crossfold/internal/room"
	"github.com/crossfold/crossfold/internal/storage"
)

// Server owns the relay's ingress and catch-up paths. It is constructed
// once per process and injected into the HTTP layer; there is no package
// level instance.
type Server struct {
	hub    *Hub
	games  storage.GameEventStore
	rooms  storage.RoomEventStore
	bridge *Bridge
	tracer trace.Tracer
	now    func() time.Time

	upgrader websocket.Upgrader

	// Per-game and per-room locks serialize the validate-persist-broadcast
	// pipeline so arrival order at the persistence step is also broadcast
	// order. Whoever persists first wins; there is no conflict merge.
	gameLocks *keyedLocks
	roomLocks *keyedLocks
}

// Option configures a Server.
type Option func(*Server)

// WithBridge attaches a cross-instance broadcast bridge.
func WithBridge(b *Bridge) Option {
	return func(s *Server) { s.bridge = b }
}

// WithClock overrides the relay's clock; tests pin it.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a relay server over the given stores.
func New(games storage.GameEventStore, rooms storage.RoomEventStore, opts ...Option) *Server {
	s := &Server{
		hub:    NewHub(),
		games:  games,
		rooms:  rooms,
		tracer: otel.Tracer("crossfold/relay"),
		now:    time.Now,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		gameLocks: newKeyedLocks(),
		roomLocks: newKeyedLocks(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.bridge != nil {
		s.bridge.hub = s.hub
	}
	return s
}

// Hub exposes the server's hub; the bridge rebroadcasts through it.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP surface: the websocket endpoint plus a health
// probe.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleSocket)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("relay upgrade failed remote=%s: %v", r.RemoteAddr, err)
		return
	}

	c := newConn(ws)
	go c.writePump()
	defer func() {
		s.hub.LeaveAll(c)
		c.close()
	}()

	ctx := r.Context()
	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("relay read failed remote=%s: %v", r.RemoteAddr, err)
			}
			return
		}

		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			s.nack(c, "", CodeBadRequest, "malformed request envelope")
			continue
		}
		s.dispatch(ctx, c, req)
	}
}

// dispatch routes one request. Requests on a single connection are handled
// sequentially in arrival order; concurrency exists only across
// connections and is fenced by the per-game locks.
func (s *Server) dispatch(ctx context.Context, c *conn, req Request) {
	switch req.Action {
	case ActionJoinGame:
		s.handleJoin(c, req, gameRoomKey, "gid")
	case ActionLeaveGame:
		s.handleLeave(c, req, gameRoomKey, "gid")
	case ActionJoinRoom:
		s.handleJoin(c, req, roomRoomKey, "rid")
	case ActionLeaveRoom:
		s.handleLeave(c, req, roomRoomKey, "rid")
	case ActionSyncAllGameEvents:
		s.handleSyncGame(ctx, c, req)
	case ActionSyncAllRoomEvents:
		s.handleSyncRoom(ctx, c, req)
	case ActionGameEvent:
		s.handleGameEvent(ctx, c, req)
	case ActionRoomEvent:
		s.handleRoomEvent(ctx, c, req)
	case ActionLatencyPing:
		s.handleLatencyPing(c, req)
	default:
		s.nack(c, req.ID, CodeBadRequest, "unknown action "+req.Action)
	}
}

// ref decodes the {gid} / {rid} shape shared by join, leave, and sync.
func decodeRef(data json.RawMessage, field string) (string, bool) {
	var ref map[string]string
	if err := json.Unmarshal(data, &ref); err != nil {
		return "", false
	}
	id := strings.TrimSpace(ref[field])
	return id, id != ""
}

func (s *Server) handleJoin(c *conn, req Request, key func(string) string, field string) {
	id, ok := decodeRef(req.Data, field)
	if !ok {
		s.nack(c, req.ID, CodeBadRequest, "missing "+field)
		return
	}
	s.hub.Join(key(id), c)
	s.ack(c, req.ID, nil)
}

func (s *Server) handleLeave(c *conn, req Request, key func(string) string, field string) {
	id, ok := decodeRef(req.Data, field)
	if !ok {
		s.nack(c, req.ID, CodeBadRequest, "missing "+field)
		return
	}
	s.hub.Leave(key(id), c)
	s.ack(c, req.ID, nil)
}

// handleSyncGame returns the full ordered history so a newly joined client
// can rebuild state through the reducer before consuming live broadcasts.
func (s *Server) handleSyncGame(ctx context.Context, c *conn, req Request) {
	gid, ok := decodeRef(req.Data, "gid")
	if !ok {
		s.nack(c, req.ID, CodeBadRequest, "missing gid")
		return
	}
	page, err := s.games.GetEvents(ctx, gid, storage.EventQuery{})
	if err != nil {
		s.nack(c, req.ID, CodeUnavailable, err.Error())
		return
	}
	events := page.Events
	if events == nil {
		events = []event.Event{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		s.nack(c, req.ID, CodeUnavailable, err.Error())
		return
	}
	s.ack(c, req.ID, data)
}

func (s *Server) handleSyncRoom(ctx context.Context, c *conn, req Request) {
	rid, ok := decodeRef(req.Data, "rid")
	if !ok {
		s.nack(c, req.ID, CodeBadRequest, "missing rid")
		return
	}
	page, err := s.rooms.GetRoomEvents(ctx, rid, storage.EventQuery{})
	if err != nil {
		s.nack(c, req.ID, CodeUnavailable, err.Error())
		return
	}
	events := page.Events
	if events == nil {
		events = []room.Event{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		s.nack(c, req.ID, CodeUnavailable, err.Error())
		return
	}
	s.ack(c, req.ID, data)
}

// handleGameEvent is the ingress path: resolve server time, validate,
// persist, then fan out to every room member including the sender. A
// persistence failure acks an error and nothing is broadcast.
func (s *Server) handleGameEvent(ctx context.Context, c *conn, req Request) {
	var payload GameEventPayload
	if err := json.Unmarshal(req.Data, &payload); err != nil {
		s.nack(c, req.ID, CodeBadRequest, "malformed game_event payload")
		return
	}
	gid := strings.TrimSpace(payload.GID)
	if gid == "" {
		s.nack(c, req.ID, CodeBadRequest, "missing gid")
		return
	}

	release := s.gameLocks.acquire(gid)
	defer release()

	ctx, span := s.tracer.Start(ctx, "relay.game_event")
	span.SetAttributes(
		attribute.String("gid", gid),
		attribute.String("event_type", string(payload.Event.Type)),
	)
	defer span.End()

	evt := s.resolveGameTime(payload.Event)
	validated, err := event.Validate(evt)
	if err != nil {
		s.nack(c, req.ID, CodeInvalid, err.Error())
		return
	}

	if err := s.games.AddEvent(ctx, gid, validated); err != nil {
		log.Printf("append game event failed gid=%s event_type=%s: %v", gid, validated.Type, err)
		s.nack(c, req.ID, CodeUnavailable, "event not persisted")
		return
	}

	s.fanOut(ctx, PushGameEvent, gameRoomKey(gid), GameEventPayload{GID: gid, Event: validated})

	ackData, _ := json.Marshal(validated)
	s.ack(c, req.ID, ackData)
}

func (s *Server) handleRoomEvent(ctx context.Context, c *conn, req Request) {
	var payload RoomEventPayload
	if err := json.Unmarshal(req.Data, &payload); err != nil {
		s.nack(c, req.ID, CodeBadRequest, "malformed room_event payload")
		return
	}
	rid := strings.TrimSpace(payload.RID)
	if rid == "" {
		s.nack(c, req.ID, CodeBadRequest, "missing rid")
		return
	}

	release := s.roomLocks.acquire(rid)
	defer release()

	evt := s.resolveRoomTime(payload.Event)
	validated, err := room.Validate(evt)
	if err != nil {
		s.nack(c, req.ID, CodeInvalid, err.Error())
		return
	}

	if err := s.rooms.AddRoomEvent(ctx, rid, validated); err != nil {
		log.Printf("append room event failed rid=%s event_type=%s: %v", rid, validated.Type, err)
		s.nack(c, req.ID, CodeUnavailable, "event not persisted")
		return
	}

	s.fanOut(ctx, PushRoomEvent, roomRoomKey(rid), RoomEventPayload{RID: rid, Event: validated})

	ackData, _ := json.Marshal(validated)
	s.ack(c, req.ID, ackData)
}

func (s *Server) handleLatencyPing(c *conn, req Request) {
	var ping LatencyPing
	if err := json.Unmarshal(req.Data, &ping); err != nil {
		s.nack(c, req.ID, CodeBadRequest, "malformed latency_ping payload")
		return
	}
	pong, err := json.Marshal(LatencyPong{
		ClientTimestamp: ping.Timestamp,
		ServerTimestamp: s.now().UnixMilli(),
	})
	if err != nil {
		s.nack(c, req.ID, CodeBadRequest, err.Error())
		return
	}
	s.send(c, Message{ID: req.ID, Action: PushLatencyPong, Data: pong})
}

// fanOut broadcasts the persisted event verbatim to the local room and,
// when a bridge is attached, to peer instances.
func (s *Server) fanOut(ctx context.Context, action, key string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("marshal broadcast payload room=%s: %v", key, err)
		return
	}
	frame, err := json.Marshal(Message{Action: action, Data: data})
	if err != nil {
		log.Printf("marshal broadcast frame room=%s: %v", key, err)
		return
	}
	s.hub.Broadcast(key, frame)
	if s.bridge != nil {
		s.bridge.Publish(ctx, key, frame)
	}
}

// resolveGameTime resolves the use-server-time flag once at ingress and
// coerces non-positive timestamps so clock skew never rejects an event.
func (s *Server) resolveGameTime(evt event.Event) event.Event {
	if evt.UseServerTime || evt.Timestamp <= 0 {
		evt.Timestamp = s.now().UnixMilli()
		evt.UseServerTime = false
	}
	return evt
}

func (s *Server) resolveRoomTime(evt room.Event) room.Event {
	if evt.UseServerTime || evt.Timestamp <= 0 {
		evt.Timestamp = s.now().UnixMilli()
		evt.UseServerTime = false
	}
	return evt
}

func (s *Server) ack(c *conn, id string, data json.RawMessage) {
	s.send(c, Message{ID: id, Data: data})
}

func (s *Server) nack(c *conn, id, code, message string) {
	s.send(c, Message{ID: id, Error: &Error{Code: code, Message: message}})
}

func (s *Server) send(c *conn, msg Message) {
	frame, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal relay message: %v", err)
		return
	}
	if !c.enqueue(frame) {
		c.close()
	}
}
