package proto

import "encoding/json"

// Inbound is the envelope for frames coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	// Client -> server frame types.
	InboundTypeOnline      = "online"
	InboundTypeJoinRoom    = "join_room"
	InboundTypeLeaveRoom   = "leave_room"
	InboundTypeSendMessage = "send_message"
	InboundTypeTyping      = "typing"

	// Server -> client envelope types.
	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	// Server -> client event names.
	EventNewMessage  = "new_message"
	EventUserTyping  = "user_typing"
	EventUserOnline  = "user_online"
	EventUserOffline = "user_offline"
	EventHistory     = "history"
)

// RoomData carries the target room for join_room and leave_room.
type RoomData struct {
	RoomID string `json:"room_id"`
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
}

// TypingData is a best-effort typing signal from the client.
type TypingData struct {
	RoomID   string `json:"room_id"`
	IsTyping bool   `json:"is_typing"`
}

// Outbound is the envelope for frames sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Envelope is the read-side form of Outbound, keeping the payload raw so
// consumers can decode it by event name.
type Envelope struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// MessageData describes a delivered chat message.
type MessageData struct {
	ID                string `json:"id"`
	RoomID            string `json:"room_id"`
	SenderID          int64  `json:"sender_id"`
	SenderHandle      string `json:"sender_handle"`
	SenderDisplayName string `json:"sender_display_name"`
	Content           string `json:"content"`
	TS                int64  `json:"ts"`
}

// UserTypingData notifies that a user started or stopped typing in a room.
type UserTypingData struct {
	RoomID          string `json:"room_id"`
	UserID          int64  `json:"user_id"`
	UserHandle      string `json:"user_handle"`
	UserDisplayName string `json:"user_display_name"`
	IsTyping        bool   `json:"is_typing"`
}

// PresenceData notifies that a user came online or went offline.
type PresenceData struct {
	UserID int64 `json:"user_id"`
}

// HistoryData delivers recent messages to a client upon joining a room.
type HistoryData struct {
	RoomID   string        `json:"room_id"`
	Messages []MessageData `json:"messages"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
