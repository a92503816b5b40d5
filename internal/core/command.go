package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandOnline announces the client's presence after connecting.
	CommandOnline CommandKind = iota
	// CommandJoinRoom subscribes the client to a room's live events.
	CommandJoinRoom
	// CommandLeaveRoom unsubscribes the client from a room.
	CommandLeaveRoom
	// CommandSendMessage delivers a chat message to room participants.
	CommandSendMessage
	// CommandTyping relays a typing signal to room participants.
	CommandTyping
)

// Command represents an action requested by a client.
type Command struct {
	Kind     CommandKind
	Room     string
	Content  string
	IsTyping bool
}
