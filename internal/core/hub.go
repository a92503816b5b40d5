package core

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kupantip/chat-server/internal/metrics"
	"github.com/kupantip/chat-server/internal/presence"
	"github.com/kupantip/chat-server/internal/store"
)

// defaultHistoryLimit bounds the replay sent on join.
const defaultHistoryLimit = 50

type submission struct {
	client *Client
	cmd    *Command
}

// Hub coordinates all connected clients and rooms. All state is owned by
// the single goroutine running Run; clients interact through channels.
type Hub struct {
	store    store.Store
	presence presence.Tracker
	log      zerolog.Logger

	// HistoryLimit is the max number of messages replayed on join.
	// Set before Run.
	HistoryLimit int

	register   chan *Client
	unregister chan *Client
	submit     chan submission

	rooms   map[string]*Room
	clients map[*Client]struct{}
}

// NewHub creates a hub. Store and tracker may be nil, in which case
// membership checks, persistence and presence recording are skipped.
func NewHub(st store.Store, tracker presence.Tracker, logger *zerolog.Logger) *Hub {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Hub{
		store:        st,
		presence:     tracker,
		log:          l,
		HistoryLimit: defaultHistoryLimit,
		register:     make(chan *Client, 16),
		unregister:   make(chan *Client, 16),
		submit:       make(chan submission, 64),
		rooms:        make(map[string]*Room),
		clients:      make(map[*Client]struct{}),
	}
}

// RegisterClient adds a client to the hub. Safe to call from any goroutine
// once Run has been started.
func (h *Hub) RegisterClient(c *Client) {
	h.register <- c
}

// UnregisterClient removes a client from the hub and all its rooms.
func (h *Hub) UnregisterClient(c *Client) {
	h.unregister <- c
}

// Run processes registrations and client commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			go h.forward(ctx, c)
		case c := <-h.unregister:
			h.drop(ctx, c)
		case sub := <-h.submit:
			h.handle(ctx, sub.client, sub.cmd)
		}
	}
}

// forward pumps one client's commands into the hub's serialized queue.
func (h *Hub) forward(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case cmd := <-c.Commands:
			if cmd == nil {
				return
			}
			select {
			case h.submit <- submission{client: c, cmd: cmd}:
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
		}
	}
}

func (h *Hub) drop(ctx context.Context, c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	for roomID := range c.Rooms {
		if room, ok := h.rooms[roomID]; ok {
			room.RemoveClient(c)
			if room.Empty() {
				delete(h.rooms, roomID)
			}
		}
	}
	delete(h.clients, c)
	close(c.done)

	if h.presence != nil {
		if err := h.presence.SetOffline(ctx, c.UserID); err != nil {
			h.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("presence offline failed")
		}
	}

	h.broadcastAll(&Event{Kind: EventUserOffline, UserID: c.UserID}, c)
}

func (h *Hub) handle(ctx context.Context, c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandOnline:
		h.handleOnline(ctx, c)
	case CommandJoinRoom:
		h.handleJoin(ctx, c, cmd.Room)
	case CommandLeaveRoom:
		h.handleLeave(c, cmd.Room)
	case CommandSendMessage:
		h.handleSend(ctx, c, cmd.Room, cmd.Content)
	case CommandTyping:
		h.handleTyping(c, cmd.Room, cmd.IsTyping)
	}
}

func (h *Hub) handleOnline(ctx context.Context, c *Client) {
	if h.presence != nil {
		if err := h.presence.SetOnline(ctx, c.UserID); err != nil {
			h.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("presence online failed")
		}
	}
	h.broadcastAll(&Event{Kind: EventUserOnline, UserID: c.UserID}, c)
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, roomID string) {
	if roomID == "" {
		h.sendError(c, ErrCodeBadRequest, "room is required")
		return
	}
	if _, joined := c.Rooms[roomID]; joined {
		// Redundant join is an idempotent no-op.
		return
	}

	if h.store != nil {
		id, err := parseRoomID(roomID)
		if err != nil {
			h.sendError(c, ErrCodeRoomNotFound, "unknown room")
			return
		}
		member, err := h.store.IsMember(ctx, c.UserID, id)
		if err != nil {
			h.log.Error().Err(err).Str("room", roomID).Msg("membership check failed")
			h.sendError(c, ErrCodeInternal, "internal error")
			return
		}
		if !member {
			h.sendError(c, ErrCodeNotMember, "not a member of this room")
			return
		}

		history, err := h.store.ListMessages(ctx, id, h.HistoryLimit, nil)
		if err != nil {
			h.log.Error().Err(err).Str("room", roomID).Msg("history load failed")
		} else if len(history) > 0 {
			h.sendEvent(c, &Event{
				Kind:     EventHistory,
				Room:     roomID,
				Messages: messagesFromStore(history),
			})
		}
	}

	room, ok := h.rooms[roomID]
	if !ok {
		room = NewRoom(roomID)
		h.rooms[roomID] = room
	}
	room.AddClient(c)
	c.Rooms[roomID] = struct{}{}

	h.log.Debug().Str("room", roomID).Str("client_id", c.ID).Msg("client joined room")
}

func (h *Hub) handleLeave(c *Client, roomID string) {
	// Redundant leave is an idempotent no-op.
	if _, joined := c.Rooms[roomID]; !joined {
		return
	}
	delete(c.Rooms, roomID)

	if room, ok := h.rooms[roomID]; ok {
		room.RemoveClient(c)
		if room.Empty() {
			delete(h.rooms, roomID)
		}
	}

	h.log.Debug().Str("room", roomID).Str("client_id", c.ID).Msg("client left room")
}

func (h *Hub) handleSend(ctx context.Context, c *Client, roomID, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		h.sendError(c, ErrCodeBadRequest, "message content is empty")
		return
	}

	room, ok := h.rooms[roomID]
	if !ok || !room.Contains(c) {
		h.sendError(c, ErrCodeNotInRoom, "join the room before sending")
		return
	}

	msg := Message{
		RoomID:            roomID,
		SenderID:          c.UserID,
		SenderHandle:      c.Handle,
		SenderDisplayName: c.DisplayName,
		Content:           content,
	}

	if h.store != nil {
		id, err := parseRoomID(roomID)
		if err != nil {
			h.sendError(c, ErrCodeRoomNotFound, "unknown room")
			return
		}
		record := store.Message{
			RoomID:   id,
			SenderID: c.UserID,
			Content:  content,
		}
		if err := h.store.SaveMessage(ctx, &record); err != nil {
			h.log.Error().Err(err).Str("room", roomID).Msg("message persist failed")
			h.sendError(c, ErrCodeInternal, "message not saved")
			return
		}
		msg.ID = record.ID
		msg.CreatedAt = record.CreatedAt
	}

	metrics.MessagesTotal.Inc()

	// The sender receives its own message via this broadcast; there is no
	// optimistic local echo anywhere else.
	room.Broadcast(&Event{Kind: EventNewMessage, Room: roomID, Message: msg}, nil)
}

func (h *Hub) handleTyping(c *Client, roomID string, isTyping bool) {
	room, ok := h.rooms[roomID]
	if !ok || !room.Contains(c) {
		// Typing is best-effort; stale signals are ignored.
		return
	}

	metrics.TypingSignalsTotal.Inc()
	room.Broadcast(&Event{
		Kind:            EventUserTyping,
		Room:            roomID,
		UserID:          c.UserID,
		UserHandle:      c.Handle,
		UserDisplayName: c.DisplayName,
		IsTyping:        isTyping,
	}, c)
}

func (h *Hub) broadcastAll(event *Event, except *Client) {
	for client := range h.clients {
		if client == except {
			continue
		}
		select {
		case client.Events <- event:
		default:
			metrics.EventsDroppedTotal.Inc()
		}
	}
}

func (h *Hub) sendEvent(c *Client, event *Event) {
	select {
	case c.Events <- event:
	default:
		metrics.EventsDroppedTotal.Inc()
	}
}

func (h *Hub) sendError(c *Client, code, msg string) {
	h.sendEvent(c, &Event{Kind: EventError, Error: coreError(code, msg)})
}

func parseRoomID(roomID string) (int64, error) {
	return strconv.ParseInt(roomID, 10, 64)
}

func messagesFromStore(records []*store.Message) []Message {
	messages := make([]Message, 0, len(records))
	for _, rec := range records {
		messages = append(messages, Message{
			ID:                rec.ID,
			RoomID:            strconv.FormatInt(rec.RoomID, 10),
			SenderID:          rec.SenderID,
			SenderHandle:      rec.SenderHandle,
			SenderDisplayName: rec.SenderDisplayName,
			Content:           rec.Content,
			CreatedAt:         rec.CreatedAt,
		})
	}
	return messages
}
