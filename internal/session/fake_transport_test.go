package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kupantip/chat-server/internal/proto"
)

// fakeConn records written frames and delivers envelopes pushed by the
// test through serve.
type fakeConn struct {
	mu     sync.Mutex
	frames []proto.Inbound

	incoming chan *proto.Envelope
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan *proto.Envelope, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) WriteFrame(_ context.Context, frame proto.Inbound) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) ReadEnvelope(ctx context.Context) (*proto.Envelope, error) {
	select {
	case env := <-c.incoming:
		return env, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// serve delivers an outbound event envelope as if sent by the server.
func (c *fakeConn) serve(t *testing.T, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	c.incoming <- &proto.Envelope{Type: proto.OutboundTypeEvent, Event: event, Data: raw}
}

func (c *fakeConn) serveError(code, msg string) {
	c.incoming <- &proto.Envelope{Type: proto.OutboundTypeError, Error: &proto.Error{Code: code, Msg: msg}}
}

// snapshot returns a copy of the frames written so far.
func (c *fakeConn) snapshot() []proto.Inbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]proto.Inbound{}, c.frames...)
}

// waitFrames blocks until at least n frames have been written.
func (c *fakeConn) waitFrames(t *testing.T, n int) []proto.Inbound {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frames := c.snapshot()
		if len(frames) >= n {
			return frames
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, have %d", n, len(c.snapshot()))
	return nil
}

type fakeDialer struct {
	mu     sync.Mutex
	conn   *fakeConn
	err    error
	dialed int
}

func (d *fakeDialer) Dial(context.Context, string, string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed++
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialed
}

// roomID decodes the room_id from a join/leave/typing/send frame payload.
func roomID(t *testing.T, frame proto.Inbound) string {
	t.Helper()
	var data proto.RoomData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		t.Fatalf("decode %s payload: %v", frame.Type, err)
	}
	return data.RoomID
}

func connectedCoordinator(t *testing.T) (*Coordinator, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	coord := New(Config{
		URL:    "ws://test/ws",
		Token:  "test-token",
		Dialer: &fakeDialer{conn: conn},
	})
	if err := coord.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(coord.Close)
	// The presence announce is always the first frame.
	frames := conn.waitFrames(t, 1)
	if frames[0].Type != proto.InboundTypeOnline {
		t.Fatalf("expected first frame %q, got %q", proto.InboundTypeOnline, frames[0].Type)
	}
	return coord, conn
}
