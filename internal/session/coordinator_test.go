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

func TestConnectWithoutCredential(t *testing.T) {
	dialer := &fakeDialer{conn: newFakeConn()}
	coord := New(Config{URL: "ws://test/ws", Token: "", Dialer: dialer})

	err := coord.Connect(context.Background())
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
	if coord.State() != StateDisconnected {
		t.Errorf("expected disconnected state, got %v", coord.State())
	}
	if dialer.dialCount() != 0 {
		t.Errorf("expected no dial attempt, got %d", dialer.dialCount())
	}
}

func TestConnectTransitionsAndAnnouncesPresence(t *testing.T) {
	conn := newFakeConn()
	coord := New(Config{URL: "ws://test/ws", Token: "tok", Dialer: &fakeDialer{conn: conn}})

	var mu sync.Mutex
	var states []State
	coord.OnStateChange(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	if err := coord.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer coord.Close()

	mu.Lock()
	got := append([]State{}, states...)
	mu.Unlock()
	want := []State{StateConnecting, StateConnected}
	if len(got) != len(want) {
		t.Fatalf("expected states %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected states %v, got %v", want, got)
		}
	}

	frames := conn.waitFrames(t, 1)
	if frames[0].Type != proto.InboundTypeOnline {
		t.Errorf("expected online frame first, got %q", frames[0].Type)
	}
}

func TestConnectDialFailure(t *testing.T) {
	coord := New(Config{URL: "ws://test/ws", Token: "tok", Dialer: &fakeDialer{err: errors.New("refused")}})

	if err := coord.Connect(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
	if coord.State() != StateDisconnected {
		t.Errorf("expected disconnected after failed dial, got %v", coord.State())
	}
}

func TestJoinSwitchesRoomsLeaveFirst(t *testing.T) {
	coord, conn := connectedCoordinator(t)

	coord.JoinRoom("101")
	frames := conn.waitFrames(t, 2)
	if frames[1].Type != proto.InboundTypeJoinRoom || roomID(t, frames[1]) != "101" {
		t.Fatalf("expected join_room 101, got %s %s", frames[1].Type, frames[1].Data)
	}
	if coord.ActiveRoom() != "101" {
		t.Errorf("expected active room 101, got %q", coord.ActiveRoom())
	}

	// Switching rooms must leave the old one before joining the new one.
	coord.JoinRoom("202")
	frames = conn.waitFrames(t, 4)
	if frames[2].Type != proto.InboundTypeLeaveRoom || roomID(t, frames[2]) != "101" {
		t.Fatalf("expected leave_room 101 before new join, got %s %s", frames[2].Type, frames[2].Data)
	}
	if frames[3].Type != proto.InboundTypeJoinRoom || roomID(t, frames[3]) != "202" {
		t.Fatalf("expected join_room 202, got %s %s", frames[3].Type, frames[3].Data)
	}
	if coord.ActiveRoom() != "202" {
		t.Errorf("expected active room 202, got %q", coord.ActiveRoom())
	}
}

func TestRedundantJoinAndForeignLeaveAreNoOps(t *testing.T) {
	coord, conn := connectedCoordinator(t)

	coord.JoinRoom("101")
	conn.waitFrames(t, 2)

	coord.JoinRoom("101")
	coord.LeaveRoom("999")
	time.Sleep(30 * time.Millisecond)
	if frames := conn.snapshot(); len(frames) != 2 {
		t.Fatalf("expected no extra frames, got %d: %+v", len(frames), frames[2:])
	}
	if coord.ActiveRoom() != "101" {
		t.Errorf("expected active room 101, got %q", coord.ActiveRoom())
	}

	coord.LeaveRoom("101")
	frames := conn.waitFrames(t, 3)
	if frames[2].Type != proto.InboundTypeLeaveRoom || roomID(t, frames[2]) != "101" {
		t.Fatalf("expected leave_room 101, got %s %s", frames[2].Type, frames[2].Data)
	}
	if coord.ActiveRoom() != "" {
		t.Errorf("expected no active room, got %q", coord.ActiveRoom())
	}
}

func TestOperationsBeforeConnectAreSilent(t *testing.T) {
	conn := newFakeConn()
	coord := New(Config{URL: "ws://test/ws", Token: "tok", Dialer: &fakeDialer{conn: conn}})

	coord.JoinRoom("101")
	coord.LeaveRoom("101")
	coord.SendTyping("101", true)
	if coord.SendMessage("101", "hello") {
		t.Error("expected SendMessage to report false before connect")
	}
	if coord.ActiveRoom() != "" {
		t.Errorf("expected no active room, got %q", coord.ActiveRoom())
	}
	if frames := conn.snapshot(); len(frames) != 0 {
		t.Errorf("expected no frames written, got %d", len(frames))
	}
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	coord, conn := connectedCoordinator(t)

	if coord.SendMessage("101", "") {
		t.Error("expected false for empty content")
	}
	if coord.SendMessage("101", "   \n\t ") {
		t.Error("expected false for whitespace content")
	}
	time.Sleep(30 * time.Millisecond)
	if frames := conn.snapshot(); len(frames) != 1 {
		t.Fatalf("expected only the online frame, got %d", len(frames))
	}
}

func TestSendMessageTrimsAndRelays(t *testing.T) {
	coord, conn := connectedCoordinator(t)

	if !coord.SendMessage("101", "  hello there  ") {
		t.Fatal("expected SendMessage to succeed")
	}
	frames := conn.waitFrames(t, 2)
	if frames[1].Type != proto.InboundTypeSendMessage {
		t.Fatalf("expected send_message frame, got %q", frames[1].Type)
	}
	var data proto.SendMessageData
	if err := json.Unmarshal(frames[1].Data, &data); err != nil {
		t.Fatalf("decode send_message: %v", err)
	}
	if data.RoomID != "101" || data.Content != "hello there" {
		t.Errorf("unexpected payload: %+v", data)
	}
}

func TestDispatchesEventsInTransportOrder(t *testing.T) {
	coord, conn := connectedCoordinator(t)

	type record struct {
		kind string
		id   string
	}
	events := make(chan record, 16)
	coord.OnMessage(func(m proto.MessageData) { events <- record{"message", m.ID} })
	coord.OnTyping(func(d proto.UserTypingData) { events <- record{"typing", d.RoomID} })
	coord.OnPresence(func(online bool, d proto.PresenceData) {
		kind := "offline"
		if online {
			kind = "online"
		}
		events <- record{kind, ""}
	})
	coord.OnError(func(e proto.Error) { events <- record{"error", e.Code} })

	conn.serve(t, proto.EventUserOnline, proto.PresenceData{UserID: 7})
	conn.serve(t, proto.EventNewMessage, proto.MessageData{ID: "1", RoomID: "101", Content: "hi"})
	conn.serve(t, proto.EventUserTyping, proto.UserTypingData{RoomID: "101", UserID: 7, IsTyping: true})
	conn.serve(t, proto.EventNewMessage, proto.MessageData{ID: "2", RoomID: "101", Content: "again"})
	conn.serveError("room_not_found", "no such room")
	conn.serve(t, proto.EventUserOffline, proto.PresenceData{UserID: 7})

	want := []record{
		{"online", ""},
		{"message", "1"},
		{"typing", "101"},
		{"message", "2"},
		{"error", "room_not_found"},
		{"offline", ""},
	}
	for i, w := range want {
		select {
		case got := <-events:
			if got != w {
				t.Fatalf("event %d: expected %+v, got %+v", i, w, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d (%+v)", i, w)
		}
	}
}

func TestCloseDetachesHandlers(t *testing.T) {
	coord, conn := connectedCoordinator(t)

	delivered := make(chan struct{}, 4)
	coord.OnMessage(func(proto.MessageData) { delivered <- struct{}{} })

	var mu sync.Mutex
	disconnects := 0
	coord.OnStateChange(func(s State) {
		if s == StateDisconnected {
			mu.Lock()
			disconnects++
			mu.Unlock()
		}
	})

	coord.Close()
	coord.Close() // idempotent

	if coord.State() != StateDisconnected {
		t.Errorf("expected disconnected after close, got %v", coord.State())
	}
	mu.Lock()
	if disconnects != 1 {
		t.Errorf("expected exactly one disconnect notification, got %d", disconnects)
	}
	mu.Unlock()

	// An event arriving after teardown must not reach the old handler.
	select {
	case conn.incoming <- &proto.Envelope{Type: proto.OutboundTypeEvent, Event: proto.EventNewMessage, Data: []byte(`{"id":"9"}`)}:
	default:
	}
	select {
	case <-delivered:
		t.Fatal("handler invoked after Close")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTransportFailureSignalsDisconnect(t *testing.T) {
	coord, conn := connectedCoordinator(t)

	states := make(chan State, 4)
	coord.OnStateChange(func(s State) { states <- s })

	conn.Close() // server side drops the connection

	select {
	case s := <-states:
		if s != StateDisconnected {
			t.Fatalf("expected disconnected, got %v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect notification")
	}
	if coord.ActiveRoom() != "" {
		t.Errorf("expected active room cleared, got %q", coord.ActiveRoom())
	}
}

// blockingDialer parks Dial until released, so teardown can race the
// connection attempt.
type blockingDialer struct {
	conn    *fakeConn
	release chan struct{}
	started chan struct{}
}

func (d *blockingDialer) Dial(ctx context.Context, _, _ string) (Conn, error) {
	close(d.started)
	select {
	case <-d.release:
		return d.conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCloseDuringConnectStaysDisconnected(t *testing.T) {
	conn := newFakeConn()
	dialer := &blockingDialer{
		conn:    conn,
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	coord := New(Config{URL: "ws://test/ws", Token: "tok", Dialer: dialer})

	connectErr := make(chan error, 1)
	go func() {
		connectErr <- coord.Connect(context.Background())
	}()

	// Tear down while the dial is still in flight.
	<-dialer.started
	coord.Close()
	close(dialer.release)

	select {
	case err := <-connectErr:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed from the raced Connect, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return")
	}

	if coord.State() != StateDisconnected {
		t.Errorf("state after Close = %v, want disconnected", coord.State())
	}

	// The late-resolving connection must not leak.
	select {
	case <-conn.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("underlying connection never closed after Close")
	}

	// The coordinator must not have quietly resurrected a read loop.
	if coord.SendMessage("101", "hello") {
		t.Error("expected SendMessage to fail after Close won the race")
	}
	if frames := conn.snapshot(); len(frames) != 0 {
		t.Errorf("expected no frames on the abandoned connection, got %d", len(frames))
	}
}
