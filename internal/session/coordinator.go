// Package session implements the client side of the realtime chat
// service: connection lifecycle, active-room tracking, message and typing
// relay, and unread-count aggregation. UI layers consume it through
// registered handlers; it performs no rendering or persistence itself.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kupantip/chat-server/internal/proto"
)

// State describes the connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	// ErrNoCredential is returned when Connect is called without a token.
	ErrNoCredential = errors.New("no credential")
	// ErrClosed is returned when Close tears the coordinator down while a
	// Connect is still in flight.
	ErrClosed = errors.New("coordinator closed")
)

const writeTimeout = 5 * time.Second

// Config configures a Coordinator. The credential is injected explicitly;
// the coordinator never reads ambient session state.
type Config struct {
	URL    string
	Token  string
	Logger *zerolog.Logger
	Dialer Dialer // defaults to WebSocketDialer
}

// Coordinator owns one connection to the chat service. It tracks the
// single active room, relays outgoing frames, and dispatches incoming
// events to registered handlers in transport order.
//
// At most one room is active per connection: joining a new room always
// signals leave on the previous one first, so events never leak into an
// unintended view.
type Coordinator struct {
	log    zerolog.Logger
	url    string
	token  string
	dialer Dialer

	mu         sync.Mutex
	state      State
	conn       Conn
	activeRoom string
	readCancel context.CancelFunc
	gen        uint64 // bumped on connect/close; stale read loops stop dispatching

	onState    []func(State)
	onMessage  []func(proto.MessageData)
	onTyping   []func(proto.UserTypingData)
	onPresence []func(online bool, data proto.PresenceData)
	onHistory  []func(proto.HistoryData)
	onError    []func(proto.Error)
}

// New creates a Coordinator. Call Connect to establish the channel.
func New(cfg Config) *Coordinator {
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = WebSocketDialer{}
	}
	return &Coordinator{
		log:    log,
		url:    cfg.URL,
		token:  cfg.Token,
		dialer: dialer,
		state:  StateDisconnected,
	}
}

// State returns the current connection state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ActiveRoom returns the room currently joined for live delivery, or "".
func (c *Coordinator) ActiveRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeRoom
}

// OnStateChange registers a handler for connection state transitions.
func (c *Coordinator) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = append(c.onState, fn)
}

// OnMessage registers a handler for incoming chat messages.
func (c *Coordinator) OnMessage(fn func(proto.MessageData)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = append(c.onMessage, fn)
}

// OnTyping registers a handler for typing signals.
func (c *Coordinator) OnTyping(fn func(proto.UserTypingData)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTyping = append(c.onTyping, fn)
}

// OnPresence registers a handler for online/offline signals.
func (c *Coordinator) OnPresence(fn func(online bool, data proto.PresenceData)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPresence = append(c.onPresence, fn)
}

// OnHistory registers a handler for history replays delivered on join.
func (c *Coordinator) OnHistory(fn func(proto.HistoryData)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onHistory = append(c.onHistory, fn)
}

// OnError registers a handler for server-reported errors. Transport
// failures are logged and surface as a state change, never through here.
func (c *Coordinator) OnError(fn func(proto.Error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = append(c.onError, fn)
}

// Connect establishes the channel. Without a credential it stays
// disconnected and returns ErrNoCredential. On success it announces
// presence and starts dispatching incoming events.
func (c *Coordinator) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	if c.token == "" {
		c.mu.Unlock()
		c.log.Warn().Msg("connect attempted without credential")
		return ErrNoCredential
	}
	c.state = StateConnecting
	dialGen := c.gen
	c.mu.Unlock()
	c.notifyState(StateConnecting)

	conn, err := c.dialer.Dial(ctx, c.url, c.token)
	if err != nil {
		c.mu.Lock()
		if c.gen != dialGen || c.state != StateConnecting {
			// Close won the race; it already settled the state.
			c.mu.Unlock()
			return ErrClosed
		}
		c.state = StateDisconnected
		c.mu.Unlock()
		c.notifyState(StateDisconnected)
		return err
	}

	readCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.gen != dialGen || c.state != StateConnecting {
		// Close arrived while the dial was in flight. The coordinator
		// stays torn down; the late connection must not leak.
		c.mu.Unlock()
		cancel()
		if closeErr := conn.Close(); closeErr != nil {
			c.log.Debug().Err(closeErr).Msg("close late connection")
		}
		return ErrClosed
	}
	c.conn = conn
	c.state = StateConnected
	c.readCancel = cancel
	c.gen++
	gen := c.gen
	c.mu.Unlock()
	c.notifyState(StateConnected)

	// Presence goes out immediately so other participants see us.
	if err := c.writeFrame(proto.Inbound{Type: proto.InboundTypeOnline}); err != nil {
		c.log.Warn().Err(err).Msg("presence announce failed")
	}

	go c.readLoop(readCtx, conn, gen)
	return nil
}

// Close tears the connection down and detaches all handlers. Idempotent.
// Pending events delivered after Close dispatch nothing.
func (c *Coordinator) Close() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.readCancel
	wasConnected := c.state != StateDisconnected
	c.conn = nil
	c.readCancel = nil
	c.activeRoom = ""
	c.state = StateDisconnected
	c.gen++
	c.onMessage = nil
	c.onTyping = nil
	c.onPresence = nil
	c.onHistory = nil
	c.onError = nil
	onState := c.onState
	c.onState = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			c.log.Debug().Err(err).Msg("close connection")
		}
	}
	if wasConnected {
		for _, fn := range onState {
			fn(StateDisconnected)
		}
	}
}

// JoinRoom makes roomID the active room. If another room is active it is
// left first, so the server never delivers for two rooms at once. Without
// a connection the call is dropped with a warning, not queued.
func (c *Coordinator) JoinRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		c.log.Warn().Str("room", roomID).Msg("join dropped: not connected")
		return
	}
	if c.activeRoom == roomID {
		return
	}
	if c.activeRoom != "" {
		c.writeRoomFrameLocked(proto.InboundTypeLeaveRoom, c.activeRoom)
	}
	c.writeRoomFrameLocked(proto.InboundTypeJoinRoom, roomID)
	c.activeRoom = roomID
}

// LeaveRoom leaves roomID if it is the active room; otherwise a no-op.
func (c *Coordinator) LeaveRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		c.log.Warn().Str("room", roomID).Msg("leave dropped: not connected")
		return
	}
	if c.activeRoom != roomID {
		return
	}
	c.writeRoomFrameLocked(proto.InboundTypeLeaveRoom, roomID)
	c.activeRoom = ""
}

// SendMessage relays a chat message. Returns false when the trimmed
// content is empty or no connection is established. The message becomes
// visible only via the server's broadcast echo; there is no optimistic
// local insert.
func (c *Coordinator) SendMessage(roomID, content string) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		c.log.Warn().Str("room", roomID).Msg("send dropped: not connected")
		return false
	}

	data, err := json.Marshal(proto.SendMessageData{RoomID: roomID, Content: content})
	if err != nil {
		c.log.Error().Err(err).Msg("marshal send_message")
		return false
	}
	if err := c.writeFrameLocked(proto.Inbound{Type: proto.InboundTypeSendMessage, Data: data}); err != nil {
		c.log.Warn().Err(err).Str("room", roomID).Msg("send_message write failed")
		return false
	}
	return true
}

// SendTyping relays a best-effort typing signal. No-op when disconnected.
func (c *Coordinator) SendTyping(roomID string, isTyping bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		return
	}

	data, err := json.Marshal(proto.TypingData{RoomID: roomID, IsTyping: isTyping})
	if err != nil {
		c.log.Error().Err(err).Msg("marshal typing")
		return
	}
	if err := c.writeFrameLocked(proto.Inbound{Type: proto.InboundTypeTyping, Data: data}); err != nil {
		c.log.Debug().Err(err).Str("room", roomID).Msg("typing write failed")
	}
}

func (c *Coordinator) writeRoomFrameLocked(frameType, roomID string) {
	data, err := json.Marshal(proto.RoomData{RoomID: roomID})
	if err != nil {
		c.log.Error().Err(err).Msg("marshal room frame")
		return
	}
	if err := c.writeFrameLocked(proto.Inbound{Type: frameType, Data: data}); err != nil {
		c.log.Warn().Err(err).Str("type", frameType).Str("room", roomID).Msg("room frame write failed")
	}
}

func (c *Coordinator) writeFrameLocked(frame proto.Inbound) error {
	if c.conn == nil {
		return errors.New("not connected")
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return c.conn.WriteFrame(ctx, frame)
}

func (c *Coordinator) writeFrame(frame proto.Inbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeFrameLocked(frame)
}

func (c *Coordinator) notifyState(state State) {
	c.mu.Lock()
	handlers := append([]func(State){}, c.onState...)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(state)
	}
}

// readLoop dispatches incoming envelopes until the transport fails or the
// connection is closed. Events are dispatched in transport order with no
// reordering or deduplication.
func (c *Coordinator) readLoop(ctx context.Context, conn Conn, gen uint64) {
	for {
		env, err := conn.ReadEnvelope(ctx)
		if err != nil {
			c.mu.Lock()
			stale := gen != c.gen
			if !stale {
				c.conn = nil
				c.activeRoom = ""
				c.state = StateDisconnected
				c.gen++
			}
			c.mu.Unlock()
			if !stale {
				if !errors.Is(err, context.Canceled) {
					c.log.Warn().Err(err).Msg("transport closed")
				}
				c.notifyState(StateDisconnected)
			}
			return
		}
		c.dispatch(env, gen)
	}
}

func (c *Coordinator) dispatch(env *proto.Envelope, gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	onMessage := append([]func(proto.MessageData){}, c.onMessage...)
	onTyping := append([]func(proto.UserTypingData){}, c.onTyping...)
	onPresence := append([]func(online bool, data proto.PresenceData){}, c.onPresence...)
	onHistory := append([]func(proto.HistoryData){}, c.onHistory...)
	onError := append([]func(proto.Error){}, c.onError...)
	c.mu.Unlock()

	switch env.Type {
	case proto.OutboundTypeError:
		if env.Error == nil {
			return
		}
		for _, fn := range onError {
			fn(*env.Error)
		}
	case proto.OutboundTypeEvent:
		switch env.Event {
		case proto.EventNewMessage:
			var data proto.MessageData
			if err := json.Unmarshal(env.Data, &data); err != nil {
				c.log.Warn().Err(err).Msg("decode new_message")
				return
			}
			for _, fn := range onMessage {
				fn(data)
			}
		case proto.EventUserTyping:
			var data proto.UserTypingData
			if err := json.Unmarshal(env.Data, &data); err != nil {
				c.log.Warn().Err(err).Msg("decode user_typing")
				return
			}
			for _, fn := range onTyping {
				fn(data)
			}
		case proto.EventUserOnline, proto.EventUserOffline:
			var data proto.PresenceData
			if err := json.Unmarshal(env.Data, &data); err != nil {
				c.log.Warn().Err(err).Msg("decode presence")
				return
			}
			for _, fn := range onPresence {
				fn(env.Event == proto.EventUserOnline, data)
			}
		case proto.EventHistory:
			var data proto.HistoryData
			if err := json.Unmarshal(env.Data, &data); err != nil {
				c.log.Warn().Err(err).Msg("decode history")
				return
			}
			for _, fn := range onHistory {
				fn(data)
			}
		default:
			c.log.Debug().Str("event", env.Event).Msg("ignoring unknown event")
		}
	}
}
