package core

// EventKind is a notification the hub emits to clients.
type EventKind int

const (
	// EventNewMessage notifies clients about a chat message in a room.
	EventNewMessage EventKind = iota
	// EventUserTyping notifies clients that a user started or stopped typing.
	EventUserTyping
	// EventUserOnline notifies clients that a user connected.
	EventUserOnline
	// EventUserOffline notifies clients that a user disconnected.
	EventUserOffline
	// EventHistory delivers recent messages to a client upon joining a room.
	EventHistory
	// EventError notifies a client about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind            EventKind
	Room            string
	UserID          int64
	UserHandle      string
	UserDisplayName string
	IsTyping        bool
	Message         Message
	Messages        []Message // For EventHistory
	Error           *CoreError
}
