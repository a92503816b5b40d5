package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered or guest user.
type User struct {
	ID           int64
	Handle       string
	DisplayName  string
	PasswordHash string
	IsGuest      bool
	SessionID    string // For guest session tracking
	CreatedAt    time.Time
}

// Room represents a conversation context, either a group or a direct chat.
type Room struct {
	ID        int64
	Name      string  // empty for direct rooms; display name is derived per viewer
	IsGroup   bool
	DirectKey *string // for direct rooms: "dm:{minUserId}:{maxUserId}"
	CreatedBy *int64
	CreatedAt time.Time
}

// Member is a room participant with enough identity to render.
type Member struct {
	UserID      int64
	Handle      string
	DisplayName string
	JoinedAt    time.Time
}

// Message represents a persisted chat message.
type Message struct {
	ID                int64
	RoomID            int64
	SenderID          int64
	SenderHandle      string
	SenderDisplayName string
	Content           string
	CreatedAt         time.Time
}

// RoomSummary is a room decorated with list-view fields for one viewer.
type RoomSummary struct {
	Room
	Members       []Member
	LastMessage   *string
	LastMessageAt *time.Time
	UnreadCount   int
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, handle, displayName, passwordHash string) (*User, error)

	// CreateGuestUser creates a temporary guest user with session ID.
	CreateGuestUser(ctx context.Context, sessionID string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByHandle retrieves a non-guest user by handle.
	GetUserByHandle(ctx context.Context, handle string) (*User, error)

	// GetUserBySessionID retrieves a guest user by session ID.
	GetUserBySessionID(ctx context.Context, sessionID string) (*User, error)
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom creates a group room and adds the creator plus participants as members.
	CreateRoom(ctx context.Context, name string, creatorID int64, participantIDs []int64) (*Room, error)

	// CreateDirectRoom creates a direct room between two users, deduplicated
	// via directKey. Both users become members. Returns the existing room if
	// the key is already taken.
	CreateDirectRoom(ctx context.Context, directKey string, user1ID, user2ID int64) (*Room, error)

	// GetRoomByID retrieves a room by ID.
	GetRoomByID(ctx context.Context, id int64) (*Room, error)

	// GetRoomByDirectKey retrieves a direct room by its direct_key.
	GetRoomByDirectKey(ctx context.Context, directKey string) (*Room, error)

	// ListRoomSummaries lists rooms the user is a member of, newest activity
	// first, with last message and unread count computed for that user.
	ListRoomSummaries(ctx context.Context, userID int64) ([]*RoomSummary, error)

	// RenameRoom updates a room's name.
	RenameRoom(ctx context.Context, roomID int64, name string) error

	// AddMember adds a user to a room. Idempotent.
	AddMember(ctx context.Context, userID, roomID int64) error

	// IsMember checks if user is a member of the room.
	IsMember(ctx context.Context, userID, roomID int64) (bool, error)

	// ListMembers lists all members of a room.
	ListMembers(ctx context.Context, roomID int64) ([]Member, error)
}

// MessageStore handles message persistence and read state.
type MessageStore interface {
	// SaveMessage persists a message and fills in its ID and CreatedAt.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages retrieves messages from a room, oldest first.
	// If beforeID is provided, returns messages older than that ID.
	// Limit determines max number of messages to return.
	ListMessages(ctx context.Context, roomID int64, limit int, beforeID *int64) ([]*Message, error)

	// MarkRead records that the user has read everything in the room up to
	// the latest message.
	MarkRead(ctx context.Context, userID, roomID int64) error

	// UnreadCount returns how many messages in the room the user has not read.
	// The user's own messages never count as unread.
	UnreadCount(ctx context.Context, userID, roomID int64) (int, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
