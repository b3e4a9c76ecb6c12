package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	actionJoinGame          = "join_game"
	actionLeaveGame         = "leave_game"
	actionJoinRoom          = "join_room"
	actionLeaveRoom         = "leave_room"
	actionSyncAllGameEvents = "sync_all_game_events"
	actionSyncAllRoomEvents = "sync_all_room_events"
	actionGameEvent         = "game_event"
	actionRoomEvent         = "room_event"
	actionLatencyPing       = "latency_ping"
)

// Client is the relay SDK. Submit events with EmitGameEvent, receive
// broadcasts through OnGameEvent, and reconcile local edits with a Queue.
// After a reconnect the embedder must RollbackAll its queue and resync
// before trusting local state again.
type Client struct {
	cfg    Config
	logger Logger

	ws      *websocket.Conn
	writeMu sync.Mutex

	onGameEvent func(GameEventPush)
	onRoomEvent func(RoomEventPush)
	onError     func(error)

	mu        sync.Mutex
	connected bool
	cancel    context.CancelFunc
	pending   map[string]chan message
}

// NewClient constructs a client with the provided config. Use
// DefaultConfig() as a starting point.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:     cfg,
		logger:  noopLogger{},
		pending: make(map[string]chan message),
	}
}

// SetLogger overrides the logger (optional).
func (c *Client) SetLogger(l Logger) {
	if l != nil {
		c.logger = l
	}
}

// OnGameEvent registers the callback for broadcast game events. Register
// callbacks before Connect.
func (c *Client) OnGameEvent(fn func(GameEventPush)) { c.onGameEvent = fn }

// OnRoomEvent registers the callback for broadcast room events.
func (c *Client) OnRoomEvent(fn func(RoomEventPush)) { c.onRoomEvent = fn }

// OnError registers the callback for asynchronous errors.
func (c *Client) OnError(fn func(error)) { c.onError = fn }

// Connect dials the relay and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return NewError(ErrorConnection, "already connected")
	}
	c.mu.Unlock()

	if c.cfg.URL == "" {
		return NewError(ErrorConnection, "empty URL")
	}

	dialCtx := ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	ws, _, err := websocket.Dial(dialCtx, c.cfg.URL, nil)
	if err != nil {
		return WrapError(ErrorConnection, "dial failed", err)
	}
	ws.SetReadLimit(1 << 22)

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.ws = ws
	c.cancel = cancel
	c.connected = true
	c.mu.Unlock()

	go c.readLoop(runCtx, ws)
	return nil
}

// Close shuts the client down and fails any in-flight requests.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.connected = false
	ws := c.ws
	c.mu.Unlock()

	c.failPending()
	if ws != nil {
		return ws.Close(websocket.StatusNormalClosure, "client close")
	}
	return nil
}

// JoinGame subscribes the connection to a game's broadcasts. Joining twice
// is idempotent.
func (c *Client) JoinGame(ctx context.Context, gid string) error {
	_, err := c.call(ctx, actionJoinGame, map[string]string{"gid": gid})
	return err
}

// LeaveGame unsubscribes from a game.
func (c *Client) LeaveGame(ctx context.Context, gid string) error {
	_, err := c.call(ctx, actionLeaveGame, map[string]string{"gid": gid})
	return err
}

// JoinRoom subscribes the connection to a room's broadcasts.
func (c *Client) JoinRoom(ctx context.Context, rid string) error {
	_, err := c.call(ctx, actionJoinRoom, map[string]string{"rid": rid})
	return err
}

// LeaveRoom unsubscribes from a room.
func (c *Client) LeaveRoom(ctx context.Context, rid string) error {
	_, err := c.call(ctx, actionLeaveRoom, map[string]string{"rid": rid})
	return err
}

// SyncAllGameEvents returns the game's full ordered history. Call it after
// JoinGame; replayed events and live broadcasts may overlap, so fold them
// through the same reducer rather than tracking a cursor.
func (c *Client) SyncAllGameEvents(ctx context.Context, gid string) ([]GameEvent, error) {
	msg, err := c.call(ctx, actionSyncAllGameEvents, map[string]string{"gid": gid})
	if err != nil {
		return nil, err
	}
	var events []GameEvent
	if err := json.Unmarshal(msg.Data, &events); err != nil {
		return nil, WrapError(ErrorSerialization, "decode game events", err)
	}
	return events, nil
}

// SyncAllRoomEvents returns the room's full ordered history.
func (c *Client) SyncAllRoomEvents(ctx context.Context, rid string) ([]RoomEvent, error) {
	msg, err := c.call(ctx, actionSyncAllRoomEvents, map[string]string{"rid": rid})
	if err != nil {
		return nil, err
	}
	var events []RoomEvent
	if err := json.Unmarshal(msg.Data, &events); err != nil {
		return nil, WrapError(ErrorSerialization, "decode room events", err)
	}
	return events, nil
}

// EmitGameEvent submits one event and returns the persisted version from
// the ack. Set UseServerTime to let the relay stamp the timestamp.
func (c *Client) EmitGameEvent(ctx context.Context, gid string, evt GameEvent) (GameEvent, error) {
	msg, err := c.call(ctx, actionGameEvent, GameEventPush{GID: gid, Event: evt})
	if err != nil {
		return GameEvent{}, err
	}
	var persisted GameEvent
	if err := json.Unmarshal(msg.Data, &persisted); err != nil {
		return GameEvent{}, WrapError(ErrorSerialization, "decode persisted event", err)
	}
	return persisted, nil
}

// EmitRoomEvent submits one room event and returns the persisted version.
func (c *Client) EmitRoomEvent(ctx context.Context, rid string, evt RoomEvent) (RoomEvent, error) {
	msg, err := c.call(ctx, actionRoomEvent, RoomEventPush{RID: rid, Event: evt})
	if err != nil {
		return RoomEvent{}, err
	}
	var persisted RoomEvent
	if err := json.Unmarshal(msg.Data, &persisted); err != nil {
		return RoomEvent{}, WrapError(ErrorSerialization, "decode persisted event", err)
	}
	return persisted, nil
}

// LatencyPing measures the round trip to the relay. Observational only.
func (c *Client) LatencyPing(ctx context.Context) (LatencyPong, error) {
	msg, err := c.call(ctx, actionLatencyPing, map[string]int64{
		"timestamp": time.Now().UnixMilli(),
	})
	if err != nil {
		return LatencyPong{}, err
	}
	var pong LatencyPong
	if err := json.Unmarshal(msg.Data, &pong); err != nil {
		return LatencyPong{}, WrapError(ErrorSerialization, "decode latency_pong", err)
	}
	return pong, nil
}

// call sends one request and blocks for its ack.
func (c *Client) call(ctx context.Context, action string, payload any) (message, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return message{}, NewError(ErrorNotConnected, "not connected")
	}
	ws := c.ws
	id := uuid.NewString()
	ch := make(chan message, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(payload)
	if err != nil {
		return message{}, WrapError(ErrorSerialization, "encode "+action, err)
	}
	frame, err := json.Marshal(request{ID: id, Action: action, Data: data})
	if err != nil {
		return message{}, WrapError(ErrorSerialization, "encode "+action, err)
	}

	if err := c.write(ctx, ws, frame); err != nil {
		return message{}, WrapError(ErrorConnection, "write "+action, err)
	}

	waitCtx := ctx
	if c.cfg.AckTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.cfg.AckTimeout)
		defer cancel()
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return message{}, NewError(ErrorNotConnected, "connection lost")
		}
		if msg.Error != nil {
			return message{}, &Error{Code: parseErrorCode(msg.Error.Code), Message: msg.Error.Message}
		}
		return msg, nil
	case <-waitCtx.Done():
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return message{}, NewError(ErrorTimeout, "ack timeout for "+action)
		}
		return message{}, waitCtx.Err()
	}
}

func (c *Client) write(ctx context.Context, ws *websocket.Conn, frame []byte) error {
	if c.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.WriteTimeout)
		defer cancel()
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.Write(ctx, websocket.MessageText, frame)
}

// readLoop owns the conn it was started with. It never reads c.ws, so a
// Close followed by a fresh Connect cannot race with a loop still
// draining the old conn.
func (c *Client) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			c.mu.Lock()
			current := c.ws == ws
			if current {
				c.connected = false
			}
			c.mu.Unlock()
			// A superseded loop must not fail the replacement conn's
			// in-flight calls; Close already drained its own.
			if current {
				c.failPending()
			}
			if !isExpectedDisconnect(ctx, err) {
				c.logger.Warn("read loop exit", map[string]any{"error": err.Error()})
				c.dispatchError(WrapError(ErrorConnection, "read loop exit", err))
			}
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("malformed server message", map[string]any{"error": err.Error()})
			c.dispatchError(WrapError(ErrorSerialization, "decode server message", err))
			continue
		}

		if msg.ID != "" {
			c.resolve(msg)
			continue
		}

		switch msg.Action {
		case actionGameEvent:
			var push GameEventPush
			if err := json.Unmarshal(msg.Data, &push); err != nil {
				c.dispatchError(WrapError(ErrorSerialization, "decode game_event push", err))
				continue
			}
			if c.onGameEvent != nil {
				c.onGameEvent(push)
			}
		case actionRoomEvent:
			var push RoomEventPush
			if err := json.Unmarshal(msg.Data, &push); err != nil {
				c.dispatchError(WrapError(ErrorSerialization, "decode room_event push", err))
				continue
			}
			if c.onRoomEvent != nil {
				c.onRoomEvent(push)
			}
		default:
			c.logger.Debug("unhandled push", map[string]any{"action": msg.Action})
		}
	}
}

func (c *Client) resolve(msg message) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.mu.Unlock()
	if ok {
		ch <- msg
	}
}

// failPending closes every waiter's channel; call treats the closed
// channel as a lost connection.
func (c *Client) failPending() {
	c.mu.Lock()
	chans := make([]chan message, 0, len(c.pending))
	for id, ch := range c.pending {
		chans = append(chans, ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	for _, ch := range chans {
		close(ch)
	}
}

func (c *Client) dispatchError(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

func isExpectedDisconnect(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
