package core

// Client is a connected chat participant as seen by the hub.
type Client struct {
	ID          string // connection id, unique per socket
	UserID      int64
	Handle      string
	DisplayName string
	IsGuest     bool
	Commands    chan *Command
	Events      chan *Event
	Rooms       map[string]struct{}

	done chan struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(id string, userID int64, handle, displayName string, isGuest bool) *Client {
	if displayName == "" {
		displayName = handle
	}
	return &Client{
		ID:          id,
		UserID:      userID,
		Handle:      handle,
		DisplayName: displayName,
		IsGuest:     isGuest,
		Commands:    make(chan *Command, 8),
		Events:      make(chan *Event, 8),
		Rooms:       make(map[string]struct{}),
		done:        make(chan struct{}),
	}
}
