package core

import "time"

// Message is the domain model for a chat message as it moves through the hub.
type Message struct {
	ID                int64
	RoomID            string
	SenderID          int64
	SenderHandle      string
	SenderDisplayName string
	Content           string
	CreatedAt         time.Time
}
