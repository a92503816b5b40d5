package session

import (
	"context"
	"fmt"
	"net/url"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/kupantip/chat-server/internal/proto"
)

// Conn is one established bidirectional channel to the chat service.
type Conn interface {
	// WriteFrame sends a client frame. Safe for use from one goroutine at
	// a time; the Coordinator serializes writes.
	WriteFrame(ctx context.Context, frame proto.Inbound) error

	// ReadEnvelope blocks until the next server frame arrives or ctx is
	// cancelled.
	ReadEnvelope(ctx context.Context) (*proto.Envelope, error)

	// Close tears the channel down. Idempotent.
	Close() error
}

// Dialer opens connections. Swappable so tests can inject an in-memory
// transport.
type Dialer interface {
	Dial(ctx context.Context, rawURL, token string) (Conn, error)
}

// WebSocketDialer dials the server's /ws endpoint, authenticating via the
// token query parameter.
type WebSocketDialer struct{}

// Dial opens a WebSocket connection.
func (WebSocketDialer) Dial(ctx context.Context, rawURL, token string) (Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) WriteFrame(ctx context.Context, frame proto.Inbound) error {
	return wsjson.Write(ctx, c.conn, frame)
}

func (c *wsConn) ReadEnvelope(ctx context.Context) (*proto.Envelope, error) {
	var env proto.Envelope
	if err := wsjson.Read(ctx, c.conn, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "closing")
}
